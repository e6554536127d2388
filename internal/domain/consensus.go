package domain

import (
	"math"
	"time"
)

// RawScoreSet es la salida cruda de un evaluador para un segmento.
// Guarda el token numerico tal cual lo devolvio el modelo ("4", "4.5", "alto").
// ItemScores va por id de item (redaccion literal, sin invertir); Scores es el
// formato por rasgo, aceptado solo cuando no hay ambiguedad de inversion.
type RawScoreSet struct {
	EvaluatorID  string            `json:"evaluator_id"`
	ItemScores   map[string]string `json:"item_scores,omitempty"`
	ItemEvidence map[string]string `json:"item_evidence,omitempty"`
	Scores       map[Trait]string  `json:"scores,omitempty"`
	Evidence     map[Trait]string  `json:"evidence,omitempty"`
	Confidence   string            `json:"confidence,omitempty"`
	Strategy     string            `json:"strategy,omitempty"`
}

// Empty reports whether the set carries no score at all.
func (r RawScoreSet) Empty() bool {
	return len(r.ItemScores) == 0 && len(r.Scores) == 0
}

// NormalizedScoreSet has every value in {1,3,5} with reverse correction applied.
// ItemScores keeps the corrected value of each item; Scores is the per-trait
// projection of those values that the dispute detector works on.
type NormalizedScoreSet struct {
	EvaluatorID string           `json:"evaluator_id"`
	ItemScores  map[string]int   `json:"item_scores,omitempty"`
	Scores      map[Trait]int    `json:"scores"`
	Evidence    map[Trait]string `json:"evidence,omitempty"`
	Confidence  string           `json:"confidence,omitempty"`
	Fallback    []Trait          `json:"fallback,omitempty"`
}

// TraitStatus is the escalation state of one (segment, trait) pair.
type TraitStatus string

const (
	StatusUngraded  TraitStatus = "UNGRADED"
	StatusPartial   TraitStatus = "PARTIAL"
	StatusSettled   TraitStatus = "SETTLED"
	StatusDisputed  TraitStatus = "DISPUTED"
	StatusEscalated TraitStatus = "ESCALATED"
	StatusExhausted TraitStatus = "EXHAUSTED"
)

// Terminal reports whether no further evaluator calls are needed for the trait.
func (s TraitStatus) Terminal() bool {
	return s == StatusSettled || s == StatusExhausted
}

// TraitVerdict is the per-trait bookkeeping inside a SegmentVerdict.
// Values and Evaluators are frozen at the moment the trait reached a terminal state.
type TraitVerdict struct {
	Trait      Trait       `json:"trait"`
	Status     TraitStatus `json:"status"`
	Round      int         `json:"round"`
	Values     []int       `json:"values,omitempty"`
	Evaluators []string    `json:"evaluators,omitempty"`
	Resolved   int         `json:"resolved,omitempty"`
	Escalated  bool        `json:"escalated"`
	Degraded   bool        `json:"degraded"`
}

// SegmentVerdict acumula las calificaciones de un segmento. Solo el EscalationController lo muta.
type SegmentVerdict struct {
	SegmentID string                 `json:"segment_id"`
	Index     int                    `json:"index"`
	ItemIDs   []string               `json:"item_ids"`
	Scores    []NormalizedScoreSet   `json:"scores"`
	Traits    map[Trait]TraitVerdict `json:"traits"`
	Round     int                    `json:"round"`
	Used      []string               `json:"used_evaluators"`
	Failed    []string               `json:"failed_evaluators,omitempty"`
	Terminal  bool                   `json:"terminal"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// NewSegmentVerdict crea el veredicto inicial: todos los rasgos del segmento en UNGRADED.
func NewSegmentVerdict(seg Segment) SegmentVerdict {
	v := SegmentVerdict{
		SegmentID: seg.ID,
		Index:     seg.Index,
		ItemIDs:   seg.ItemIDs(),
		Traits:    make(map[Trait]TraitVerdict),
	}
	for _, t := range seg.Traits() {
		v.Traits[t] = TraitVerdict{Trait: t, Status: StatusUngraded}
	}
	return v
}

// ValuesFor collects the normalized values every evaluator gave trait t so far.
func (v SegmentVerdict) ValuesFor(t Trait) ([]int, []string) {
	var values []int
	var evaluators []string
	for _, set := range v.Scores {
		if val, ok := set.Scores[t]; ok {
			values = append(values, val)
			evaluators = append(evaluators, set.EvaluatorID)
		}
	}
	return values, evaluators
}

// HasUsed reports whether evaluatorID already graded (or failed) this segment.
func (v SegmentVerdict) HasUsed(evaluatorID string) bool {
	for _, id := range v.Used {
		if id == evaluatorID {
			return true
		}
	}
	return false
}

// Escalated reports whether any trait ever entered an escalation round.
func (v SegmentVerdict) Escalated() bool {
	for _, tv := range v.Traits {
		if tv.Escalated {
			return true
		}
	}
	return false
}

// Degraded reports whether any trait was force-settled after quorum exhaustion.
func (v SegmentVerdict) Degraded() bool {
	for _, tv := range v.Traits {
		if tv.Degraded {
			return true
		}
	}
	return false
}

// MatchesSegment checks a resumed checkpoint still describes the same items.
func (v SegmentVerdict) MatchesSegment(seg Segment) bool {
	if v.SegmentID != seg.ID || len(v.ItemIDs) != len(seg.Items) {
		return false
	}
	for i, it := range seg.Items {
		if v.ItemIDs[i] != it.ID {
			return false
		}
	}
	return true
}

// TraitAggregate es el resultado final por rasgo.
type TraitAggregate struct {
	Trait       Trait   `json:"trait"`
	Mean        float64 `json:"mean"`
	Confidence  float64 `json:"confidence"`
	SampleCount int     `json:"sample_count"`
	Segments    int     `json:"segments"`
	Assessed    bool    `json:"assessed"`
	Escalated   bool    `json:"escalated"`
	Degraded    bool    `json:"degraded"`
}

// Scaled rescales the {1,3,5} mean onto [0,top] for presentation only.
func (a TraitAggregate) Scaled(top float64) float64 {
	if !a.Assessed {
		return 0
	}
	v := (a.Mean - ScaleMin) / (ScaleMax - ScaleMin) * top
	return math.Round(v*10) / 10
}

// ConsensusReport is the only externally visible output of a run.
type ConsensusReport struct {
	RunID              string                   `json:"run_id"`
	SubjectID          string                   `json:"subject_id,omitempty"`
	TraitAggregates    map[Trait]TraitAggregate `json:"trait_aggregates"`
	MBTICode           string                   `json:"mbti_code"`
	OverallConfidence  float64                  `json:"overall_confidence"`
	PerTraitConfidence map[Trait]float64        `json:"per_trait_confidence"`
	DisputedSegmentIDs []string                 `json:"disputed_segment_ids"`
	EvaluatorsUsed     []string                 `json:"evaluators_used"`
	SegmentCount       int                      `json:"segment_count"`
	CreatedAt          time.Time                `json:"created_at"`
}
