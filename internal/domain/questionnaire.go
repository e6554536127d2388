package domain

import "fmt"

// QuestionItem es un par pregunta/respuesta ya cargado; no se muta despues de la carga.
type QuestionItem struct {
	ID       string `json:"id" yaml:"id"`
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
	Trait    Trait  `json:"trait" yaml:"trait"`
	Reversed bool   `json:"reversed" yaml:"reversed"`
}

// Segment is an ordered batch of items graded together in one evaluator call.
type Segment struct {
	ID    string         `json:"id"`
	Index int            `json:"index"`
	Items []QuestionItem `json:"items"`
}

// SegmentID builds the stable identifier used for checkpoints.
func SegmentID(index int) string {
	return fmt.Sprintf("seg-%03d", index)
}

// Traits devuelve los rasgos presentes en el segmento, en orden OCEAN.
func (s Segment) Traits() []Trait {
	present := make(map[Trait]bool, len(BigFive))
	for _, it := range s.Items {
		present[it.Trait] = true
	}
	out := make([]Trait, 0, len(present))
	for _, t := range BigFive {
		if present[t] {
			out = append(out, t)
		}
	}
	return out
}

// UniformReversal reports the reverse flag shared by every item of trait t in the
// segment. ok is false when the items disagree, so a single trait-level score
// cannot be corrected and must come per item instead.
func (s Segment) UniformReversal(t Trait) (reversed bool, ok bool) {
	seen := false
	for _, it := range s.Items {
		if it.Trait != t {
			continue
		}
		if !seen {
			reversed, seen = it.Reversed, true
			continue
		}
		if it.Reversed != reversed {
			return false, false
		}
	}
	return reversed, seen
}

// ItemIDs returns the ids of the items in order; used to validate resumed checkpoints.
func (s Segment) ItemIDs() []string {
	ids := make([]string, len(s.Items))
	for i, it := range s.Items {
		ids[i] = it.ID
	}
	return ids
}
