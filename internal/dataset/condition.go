package dataset

import "strconv"

// Op is one comparison operator a Condition expression applies.
type Op int

const (
	OpLt Op = iota
	OpLeq
	OpGt
	OpGeq
	OpEq
)

// Expr is a single (operator, right-hand side) comparison.
type Expr struct {
	Op  Op
	RHS string
}

// Condition is a conjunction of comparisons evaluated against one item's
// key. An item matches only if every expression evaluates true.
type Condition struct {
	Exprs []Expr
}

// Eval reports whether lhs, parsed as an unsigned integer, satisfies
// every expression in c. A nil Condition matches everything.
func (c *Condition) Eval(lhs string) (bool, error) {
	if c == nil {
		return true, nil
	}
	l, err := strconv.ParseUint(lhs, 10, 32)
	if err != nil {
		return false, ErrNonNumericKey
	}
	res := true
	for _, e := range c.Exprs {
		r, err := strconv.ParseUint(e.RHS, 10, 32)
		if err != nil {
			return false, ErrNonNumericKey
		}
		switch e.Op {
		case OpLt:
			res = res && l < r
		case OpLeq:
			res = res && l <= r
		case OpGt:
			res = res && l > r
		case OpGeq:
			res = res && l >= r
		case OpEq:
			res = res && l == r
		}
	}
	return res, nil
}
