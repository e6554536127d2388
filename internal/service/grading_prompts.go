package service

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"trait-consensus/internal/domain"
)

// Rubric holds the static grading instructions sent as system prompt.
type Rubric struct {
	Instructions string                  `yaml:"instructions"`
	Traits       map[domain.Trait]string `yaml:"traits"`
}

const defaultRubricInstructions = `Eres un psicologo evaluador experto en el modelo Big Five (OCEAN).
Vas a recibir pares pregunta/respuesta de un cuestionario de personalidad.
Para cada rasgo indicado, califica cuanto la respuesta respalda la afirmacion TAL COMO ESTA REDACTADA.
No corrijas items invertidos: califica siempre la redaccion literal.

Escala obligatoria (solo estos valores):
- 1 = la respuesta contradice claramente la afirmacion
- 3 = respuesta neutral, ambigua o mixta
- 5 = la respuesta respalda claramente la afirmacion`

// DefaultRubric devuelve la rubrica estatica por rasgo.
func DefaultRubric() Rubric {
	return Rubric{
		Instructions: defaultRubricInstructions,
		Traits: map[domain.Trait]string{
			domain.TraitOpenness:          "Curiosidad intelectual, imaginacion, apertura a ideas y experiencias nuevas.",
			domain.TraitConscientiousness: "Orden, planificacion, disciplina, cumplimiento de compromisos.",
			domain.TraitExtraversion:      "Energia social, asertividad, busqueda de estimulacion con otras personas.",
			domain.TraitAgreeableness:     "Cooperacion, empatia, confianza y consideracion hacia los demas.",
			domain.TraitNeuroticism:       "Inestabilidad emocional, ansiedad, reactividad ante el estres.",
		},
	}
}

// LoadRubricFile reads a YAML rubric; missing trait texts fall back to the defaults.
func LoadRubricFile(path string) (Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rubric{}, fmt.Errorf("read rubric %s: %w", path, err)
	}
	var fileRubric struct {
		Instructions string            `yaml:"instructions"`
		Traits       map[string]string `yaml:"traits"`
	}
	if err := yaml.Unmarshal(data, &fileRubric); err != nil {
		return Rubric{}, fmt.Errorf("parse rubric %s: %w", path, err)
	}

	r := DefaultRubric()
	if strings.TrimSpace(fileRubric.Instructions) != "" {
		r.Instructions = strings.TrimSpace(fileRubric.Instructions)
	}
	for name, text := range fileRubric.Traits {
		t, ok := domain.ParseTrait(name)
		if !ok {
			return Rubric{}, fmt.Errorf("parse rubric %s: unknown trait %q", path, name)
		}
		if strings.TrimSpace(text) != "" {
			r.Traits[t] = strings.TrimSpace(text)
		}
	}
	return r, nil
}

// SystemPrompt renders the rubric plus the output contract.
func (r Rubric) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(r.Instructions)
	b.WriteString("\n\nDefiniciones de los rasgos:\n")
	for _, t := range domain.BigFive {
		if text, ok := r.Traits[t]; ok {
			fmt.Fprintf(&b, "- %s: %s\n", t, text)
		}
	}
	b.WriteString(`
Responde SOLO JSON (sin markdown), una entrada por cada item pedido, usando su id:
{
  "items": {"<id>": {"score": 1|3|5, "evidence": "cita breve de la respuesta que justifica el puntaje"}},
  "confidence": "low|medium|high"
}`)
	return b.String()
}

// BuildGradingPrompt lista los pares del segmento; cada item se califica por separado.
func BuildGradingPrompt(seg domain.Segment) string {
	var b strings.Builder
	ids := make([]string, len(seg.Items))
	for i, it := range seg.Items {
		ids[i] = it.ID
	}
	fmt.Fprintf(&b, "Items a calificar: %s\n\n", strings.Join(ids, ", "))
	for i, it := range seg.Items {
		fmt.Fprintf(&b, "[%d] id=%s rasgo=%s\nP: %s\nR: %s\n---\n",
			i+1, it.ID, it.Trait, strings.TrimSpace(it.Question), strings.TrimSpace(it.Answer))
	}
	return b.String()
}
