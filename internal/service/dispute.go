package service

import "sort"

// DisputeState is the outcome of checking one trait's scores inside a segment.
type DisputeState int

const (
	// NotAssessable: no evaluator has scored the trait yet.
	NotAssessable DisputeState = iota
	Agreed
	Disputed
)

func (s DisputeState) String() string {
	switch s {
	case Agreed:
		return "agreed"
	case Disputed:
		return "disputed"
	default:
		return "not_assessable"
	}
}

// AssessDispute compara el rango de valores contra el umbral: max-min >= threshold es disputa.
func AssessDispute(values []int, threshold float64) DisputeState {
	if len(values) == 0 {
		return NotAssessable
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if float64(hi-lo) >= threshold {
		return Disputed
	}
	return Agreed
}

// IsDisputed is the boolean form of AssessDispute.
func IsDisputed(values []int, threshold float64) bool {
	return AssessDispute(values, threshold) == Disputed
}

// LowerMedian returns the median, taking the lower middle value for even counts.
// Callers must not pass an empty slice.
func LowerMedian(values []int) int {
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)
	return sorted[(len(sorted)-1)/2]
}
