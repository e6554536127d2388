package domain

import "strings"

// Trait identifica una dimension del modelo Big Five (OCEAN).
type Trait string

const (
	TraitOpenness          Trait = "openness"
	TraitConscientiousness Trait = "conscientiousness"
	TraitExtraversion      Trait = "extraversion"
	TraitAgreeableness     Trait = "agreeableness"
	TraitNeuroticism       Trait = "neuroticism"
)

// BigFive lists the five dimensions in canonical OCEAN order.
var BigFive = []Trait{
	TraitOpenness,
	TraitConscientiousness,
	TraitExtraversion,
	TraitAgreeableness,
	TraitNeuroticism,
}

// Scale bounds of the sanctioned grading scale {1,3,5}.
const (
	ScaleMin     = 1
	ScaleMid     = 3
	ScaleMax     = 5
	ScaleReverse = ScaleMin + ScaleMax
)

var traitAliases = map[string]Trait{
	"openness":          TraitOpenness,
	"o":                 TraitOpenness,
	"apertura":          TraitOpenness,
	"conscientiousness": TraitConscientiousness,
	"c":                 TraitConscientiousness,
	"responsabilidad":   TraitConscientiousness,
	"extraversion":      TraitExtraversion,
	"extroversion":      TraitExtraversion,
	"e":                 TraitExtraversion,
	"extraversión":      TraitExtraversion,
	"agreeableness":     TraitAgreeableness,
	"a":                 TraitAgreeableness,
	"amabilidad":        TraitAgreeableness,
	"neuroticism":       TraitNeuroticism,
	"n":                 TraitNeuroticism,
	"neuroticismo":      TraitNeuroticism,
}

// ParseTrait resuelve nombres de rasgo tolerando mayusculas, alias en espanol e iniciales.
func ParseTrait(s string) (Trait, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.Trim(key, `"'`)
	t, ok := traitAliases[key]
	return t, ok
}

// Valid reports whether t is one of the Big Five dimensions.
func (t Trait) Valid() bool {
	for _, b := range BigFive {
		if t == b {
			return true
		}
	}
	return false
}

// Label returns the display name, e.g. "Openness".
func (t Trait) Label() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}
