package service

import (
	"slices"
	"testing"
)

func TestAssessDispute(t *testing.T) {
	cases := []struct {
		values    []int
		threshold float64
		want      DisputeState
	}{
		{nil, 2, NotAssessable},
		{[]int{5}, 2, Agreed},
		{[]int{5, 5, 5}, 2, Agreed},
		{[]int{1, 5, 3}, 2, Disputed},
		{[]int{3, 5}, 2, Disputed},
		{[]int{3, 5}, 2.5, Agreed},
	}
	for _, tc := range cases {
		if got := AssessDispute(tc.values, tc.threshold); got != tc.want {
			t.Fatalf("AssessDispute(%v, %v) = %s, want %s", tc.values, tc.threshold, got, tc.want)
		}
	}
	if Disputed.String() != "disputed" {
		t.Fatalf("unexpected string %q", Disputed.String())
	}
}

func TestAssessDispute_Monotonic(t *testing.T) {
	// agregar valores nunca resuelve una disputa por rango
	values := []int{1, 5}
	for _, extra := range []int{3, 3, 5, 1, 3} {
		values = append(values, extra)
		if !IsDisputed(values, 2) {
			t.Fatalf("values=%v should stay disputed", values)
		}
	}
}

func TestLowerMedian(t *testing.T) {
	cases := []struct {
		values []int
		want   int
	}{
		{[]int{1, 5, 3}, 3},
		{[]int{5, 1}, 1},
		{[]int{1, 5, 3, 3, 3}, 3},
		{[]int{5, 3, 1, 5}, 3},
	}
	for _, tc := range cases {
		if got := LowerMedian(tc.values); got != tc.want {
			t.Fatalf("LowerMedian(%v) = %d, want %d", tc.values, got, tc.want)
		}
	}

	in := []int{5, 1, 3}
	LowerMedian(in)
	if !slices.Equal(in, []int{5, 1, 3}) {
		t.Fatalf("input must not be sorted in place: %v", in)
	}
}
