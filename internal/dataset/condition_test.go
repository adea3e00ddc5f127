package dataset

import (
	"strconv"
	"testing"
)

// TestEvalFiltersRange mirrors the original implementation's
// test_complie: a [0,16) conjunction over 0..128 should keep exactly
// 0..16.
func TestEvalFiltersRange(t *testing.T) {
	cond := &Condition{Exprs: []Expr{
		{Op: OpGeq, RHS: "0"},
		{Op: OpLt, RHS: "16"},
	}}

	var got []string
	for i := 0; i < 128; i++ {
		s := strconv.Itoa(i)
		ok, err := cond.Eval(s)
		if err != nil {
			t.Fatalf("Eval(%q): %v", s, err)
		}
		if ok {
			got = append(got, s)
		}
	}

	if len(got) != 16 {
		t.Fatalf("got %d matches, want 16", len(got))
	}
	for i, s := range got {
		if s != strconv.Itoa(i) {
			t.Fatalf("match %d = %q, want %q", i, s, strconv.Itoa(i))
		}
	}
}

func TestEvalRejectsNonNumericKey(t *testing.T) {
	cond := &Condition{Exprs: []Expr{{Op: OpEq, RHS: "1"}}}
	if _, err := cond.Eval("not-a-number"); err != ErrNonNumericKey {
		t.Fatalf("Eval: got err %v, want ErrNonNumericKey", err)
	}
}

func TestNilConditionMatchesEverything(t *testing.T) {
	var cond *Condition
	ok, err := cond.Eval("anything")
	if err != nil || !ok {
		t.Fatalf("Eval on nil Condition = (%v, %v), want (true, nil)", ok, err)
	}
}
