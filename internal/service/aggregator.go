package service

import (
	"math"
	"sort"
	"strings"
	"time"

	"trait-consensus/internal/domain"
)

// mbtiAxis maps one Big Five trait onto one MBTI letter pair.
// El punto medio 3.0 cae en la segunda letra (I, S, T, P).
type mbtiAxis struct {
	trait domain.Trait
	high  byte
	low   byte
}

var mbtiAxes = []mbtiAxis{
	{trait: domain.TraitExtraversion, high: 'E', low: 'I'},
	{trait: domain.TraitOpenness, high: 'N', low: 'S'},
	{trait: domain.TraitAgreeableness, high: 'F', low: 'T'},
	{trait: domain.TraitConscientiousness, high: 'J', low: 'P'},
}

// AggregateVerdicts folds terminal segment verdicts into the run report.
// SETTLED and EXHAUSTED traits both contribute every frozen value.
func AggregateVerdicts(verdicts []domain.SegmentVerdict) domain.ConsensusReport {
	type acc struct {
		values    []int
		segments  int
		degraded  int
		escalated bool
	}
	per := make(map[domain.Trait]*acc, len(domain.BigFive))
	for _, t := range domain.BigFive {
		per[t] = &acc{}
	}

	sorted := make([]domain.SegmentVerdict, len(verdicts))
	copy(sorted, verdicts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	evaluators := make(map[string]struct{})
	disputed := make([]string, 0)

	for _, v := range sorted {
		for _, set := range v.Scores {
			evaluators[set.EvaluatorID] = struct{}{}
		}
		if v.Escalated() || v.Degraded() {
			disputed = append(disputed, v.SegmentID)
		}
		for t, tv := range v.Traits {
			a, ok := per[t]
			if !ok {
				continue
			}
			a.segments++
			if tv.Degraded {
				a.degraded++
			}
			if tv.Escalated {
				a.escalated = true
			}
			// Resolved (median) is only the segment's forced resolution; the
			// aggregate always sees every collected value so spread stays visible.
			if tv.Status.Terminal() {
				a.values = append(a.values, tv.Values...)
			}
		}
	}

	report := domain.ConsensusReport{
		TraitAggregates:    make(map[domain.Trait]domain.TraitAggregate, len(domain.BigFive)),
		PerTraitConfidence: make(map[domain.Trait]float64, len(domain.BigFive)),
		DisputedSegmentIDs: disputed,
		EvaluatorsUsed:     sortedKeys(evaluators),
		SegmentCount:       len(verdicts),
		CreatedAt:          time.Now().UTC(),
	}

	var confSum float64
	for _, t := range domain.BigFive {
		a := per[t]
		agg := domain.TraitAggregate{
			Trait:       t,
			SampleCount: len(a.values),
			Segments:    a.segments,
			Escalated:   a.escalated,
			Degraded:    a.degraded > 0,
		}
		if len(a.values) > 0 {
			agg.Assessed = true
			agg.Mean = mean(a.values)
			coverage := 1.0
			if a.segments > 0 {
				coverage = float64(a.segments-a.degraded) / float64(a.segments)
			}
			agg.Confidence = clamp01(AgreementConfidence(a.values) * coverage)
			confSum += agg.Confidence
		}
		report.TraitAggregates[t] = agg
		report.PerTraitConfidence[t] = agg.Confidence
	}
	// mean of the five; an unassessed trait counts as 0
	report.OverallConfidence = clamp01(confSum / float64(len(domain.BigFive)))
	report.MBTICode = MBTICode(report.TraitAggregates)
	return report
}

// AgreementConfidence = 1 - sd(values)/sd(1,5,1,5,... de igual largo).
func AgreementConfidence(values []int) float64 {
	if len(values) <= 1 {
		return 1
	}
	extreme := make([]int, len(values))
	for i := range extreme {
		if i%2 == 0 {
			extreme[i] = domain.ScaleMin
		} else {
			extreme[i] = domain.ScaleMax
		}
	}
	maxSD := popStdDev(extreme)
	if maxSD == 0 {
		return 1
	}
	return clamp01(1 - popStdDev(values)/maxSD)
}

// MBTICode derives the four letters from trait means; an unassessed axis yields 'X'.
func MBTICode(aggs map[domain.Trait]domain.TraitAggregate) string {
	var b strings.Builder
	for _, axis := range mbtiAxes {
		agg, ok := aggs[axis.trait]
		switch {
		case !ok || !agg.Assessed:
			b.WriteByte('X')
		case agg.Mean > domain.ScaleMid:
			b.WriteByte(axis.high)
		default:
			b.WriteByte(axis.low)
		}
	}
	return b.String()
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func popStdDev(values []int) float64 {
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := float64(v) - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
