package vset

import (
	"slices"
	"testing"
)

func TestSetRemovesFromDifference(t *testing.T) {
	l := Init(129)
	r := Init(128)
	want := New()
	want.Set(128)

	got := Difference(l, r)
	if !equal(got, want) {
		t.Fatalf("difference mismatch: got %v want %v", got.AsSlice(), want.AsSlice())
	}
}

func TestResetAllLeavesTail(t *testing.T) {
	l := Init(129)
	r := Init(128)
	want := Init(129)
	for i := uint32(0); i < 128; i++ {
		want.Reset(i)
	}
	got := Difference(l, r)
	if !equal(got, want) {
		t.Fatalf("difference mismatch: got %v want %v", got.AsSlice(), want.AsSlice())
	}
}

func TestInitRandomPickCoversAllValues(t *testing.T) {
	const size = 781
	v := Init(size)
	seen := make([]uint32, 0, size)
	for i := 0; i < size; i++ {
		seen = append(seen, v.RandomPick())
	}
	slices.Sort(seen)
	for i, got := range seen {
		if got != uint32(i) {
			t.Fatalf("index %d: got %d", i, got)
		}
	}
	if v.Len() != 0 {
		t.Fatalf("expected empty set after draining, got len %d", v.Len())
	}
}

func TestIntersectionOfNestedRanges(t *testing.T) {
	l := Init(129)
	r := Init(125)
	got := Intersect(l, r)
	if !equal(got, r) {
		t.Fatalf("intersection mismatch: got %v want %v", got.AsSlice(), r.AsSlice())
	}
}

func TestUnionOfNestedRanges(t *testing.T) {
	l := Init(129)
	r := Init(125)
	got := Union(l, r)
	if !equal(got, l) {
		t.Fatalf("union mismatch: got %v want %v", got.AsSlice(), l.AsSlice())
	}
}

func TestDifferenceOfDisjointSingletons(t *testing.T) {
	l := New()
	r := New()
	r.Set(1)
	l.Set(2)
	l.Set(3)
	got := Difference(l, r)
	if !equal(got, l) {
		t.Fatalf("difference mismatch: got %v want %v", got.AsSlice(), l.AsSlice())
	}
}

func TestUnionOfDisjointSingletons(t *testing.T) {
	l := New()
	r := New()
	l.Set(0)
	r.Set(1)

	want := New()
	want.Set(0)
	want.Set(1)

	got := Union(l, r)
	if !equal(got, want) {
		t.Fatalf("union mismatch: got %v want %v", got.AsSlice(), want.AsSlice())
	}
}

func equal(a, b Set) bool {
	return slices.Equal(a.AsSlice(), b.AsSlice())
}
