package service

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"trait-consensus/internal/domain"
)

// BucketScore proyecta cualquier valor sobre la escala {1,3,5}.
// <2 -> 1, [2,4] -> 3, >4 -> 5. Aplicarlo dos veces no cambia el resultado.
func BucketScore(v float64) int {
	switch {
	case v < 2:
		return domain.ScaleMin
	case v > 4:
		return domain.ScaleMax
	default:
		return domain.ScaleMid
	}
}

// ReverseScore flips a bucketed value: 6 - v.
func ReverseScore(v int) int {
	return domain.ScaleReverse - v
}

// NormalizeScore buckets first and only then applies reverse correction.
func NormalizeScore(v float64, reversed bool) int {
	b := BucketScore(v)
	if reversed {
		return ReverseScore(b)
	}
	return b
}

var numericTokenRe = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?`)

// ParseScoreToken extrae el primer numero de un token crudo ("4", " 4.5 ", "4/5", "score: 3").
func ParseScoreToken(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v, nil
	}
	m := numericTokenRe.FindString(s)
	if m == "" {
		return 0, &domain.MalformedScoreError{Raw: raw}
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &domain.MalformedScoreError{Raw: raw}
	}
	return v, nil
}

// NormalizeRaw parses and normalizes a raw evaluator token for one trait.
func NormalizeRaw(t domain.Trait, raw string, reversed bool) (int, error) {
	v, err := ParseScoreToken(raw)
	if err != nil {
		return 0, &domain.MalformedScoreError{Trait: t, Raw: raw}
	}
	return NormalizeScore(v, reversed), nil
}
