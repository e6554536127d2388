package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"trait-consensus/internal/domain"
)

// QuestionnaireSource entrega los pares pregunta/respuesta de un sujeto evaluado.
type QuestionnaireSource interface {
	Load(ctx context.Context) ([]domain.QuestionItem, error)
}

var (
	ErrEmptyQuestionnaire = errors.New("questionnaire has no answered items")
	ErrInvalidItem        = errors.New("invalid questionnaire item")
)

// Question is one entry of the built-in bank, without an answer.
type Question struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Trait    domain.Trait `json:"trait"`
	Reversed bool         `json:"reversed"`
}

// DefaultQuestions returns the static OCEAN questionnaire: three items per trait,
// one of them reverse-keyed.
func DefaultQuestions() []Question {
	return []Question{
		{ID: "q01", Trait: domain.TraitOpenness, Text: "Disfruto explorar ideas no convencionales o abstractas."},
		{ID: "q02", Trait: domain.TraitOpenness, Text: "Cuando me enfrento a algo totalmente nuevo, siento curiosidad antes que rechazo."},
		{ID: "q03", Trait: domain.TraitOpenness, Reversed: true, Text: "Prefiero la rutina conocida a probar actividades creativas o experimentales."},
		{ID: "q04", Trait: domain.TraitConscientiousness, Text: "Planifico mi dia con antelacion y sigo mi horario."},
		{ID: "q05", Trait: domain.TraitConscientiousness, Text: "Cuando tengo un objetivo importante me mantengo constante hasta terminarlo."},
		{ID: "q06", Trait: domain.TraitConscientiousness, Reversed: true, Text: "Suelo dejar mis responsabilidades, finanzas o compromisos para ultimo momento."},
		{ID: "q07", Trait: domain.TraitExtraversion, Text: "Disfruto ser el centro de atencion en reuniones sociales."},
		{ID: "q08", Trait: domain.TraitExtraversion, Text: "Me resulta facil iniciar conversaciones con desconocidos."},
		{ID: "q09", Trait: domain.TraitExtraversion, Reversed: true, Text: "Despues de pasar tiempo con mucha gente termino agotado y necesito estar solo."},
		{ID: "q10", Trait: domain.TraitAgreeableness, Text: "Tiendo a ser comprensivo y perdono facilmente los errores de otros."},
		{ID: "q11", Trait: domain.TraitAgreeableness, Text: "Mantener la armonia en mis relaciones es muy importante para mi."},
		{ID: "q12", Trait: domain.TraitAgreeableness, Reversed: true, Text: "En un conflicto prefiero imponer mi punto de vista antes que ceder."},
		{ID: "q13", Trait: domain.TraitNeuroticism, Text: "Me preocupo con frecuencia por el futuro y la incertidumbre me genera ansiedad."},
		{ID: "q14", Trait: domain.TraitNeuroticism, Text: "Experimento cambios intensos de animo con frecuencia."},
		{ID: "q15", Trait: domain.TraitNeuroticism, Reversed: true, Text: "Cuando algo sale mal lo supero rapido y mantengo la calma."},
	}
}

// StaticQuestionnaire pairs the built-in bank with a subject's answers.
type StaticQuestionnaire struct {
	responses map[string]string
	logger    *zap.Logger
}

// FromResponses acepta respuestas indexadas por id de item ("q03") o por el texto exacto de la pregunta.
func FromResponses(responses map[string]string, logger *zap.Logger) *StaticQuestionnaire {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaticQuestionnaire{responses: responses, logger: logger}
}

func (s *StaticQuestionnaire) Load(_ context.Context) ([]domain.QuestionItem, error) {
	bank := DefaultQuestions()
	byText := make(map[string]string, len(bank))
	for _, q := range bank {
		byText[strings.TrimSpace(q.Text)] = q.ID
	}

	answers := make(map[string]string, len(s.responses))
	var unknown []string
	for key, answer := range s.responses {
		k := strings.TrimSpace(key)
		if id, ok := byText[k]; ok {
			k = id
		}
		if !isBankID(bank, k) {
			unknown = append(unknown, key)
			continue
		}
		if strings.TrimSpace(answer) == "" {
			continue
		}
		answers[k] = answer
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		s.logger.Warn("skipping responses for unknown questions", zap.Strings("keys", unknown))
	}

	items := make([]domain.QuestionItem, 0, len(answers))
	for _, q := range bank {
		answer, ok := answers[q.ID]
		if !ok {
			continue
		}
		items = append(items, domain.QuestionItem{
			ID:       q.ID,
			Question: q.Text,
			Answer:   strings.TrimSpace(answer),
			Trait:    q.Trait,
			Reversed: q.Reversed,
		})
	}
	if len(items) == 0 {
		return nil, ErrEmptyQuestionnaire
	}
	return items, nil
}

func isBankID(bank []Question, id string) bool {
	for _, q := range bank {
		if q.ID == id {
			return true
		}
	}
	return false
}

// FileQuestionnaireSource reads items from a YAML (or JSON) file.
type FileQuestionnaireSource struct {
	Path string
}

type fileItem struct {
	ID       string `yaml:"id"`
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
	Trait    string `yaml:"trait"`
	Concept  string `yaml:"concept"`
	Reversed bool   `yaml:"reversed"`
}

// reversedTagRe reconoce marcas de item invertido en la etiqueta: "Openness (R)", "openness [reversed]".
var reversedTagRe = regexp.MustCompile(`(?i)\s*[\(\[]\s*(r|rev|reversed|invertido)\s*[\)\]]\s*`)

func (s FileQuestionnaireSource) Load(ctx context.Context) ([]domain.QuestionItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read questionnaire %s: %w", s.Path, err)
	}
	return ParseQuestionnaire(data)
}

// ParseQuestionnaire decodes either a bare list of items or a document with an "items" key.
func ParseQuestionnaire(data []byte) ([]domain.QuestionItem, error) {
	var raw []fileItem
	if err := yaml.Unmarshal(data, &raw); err != nil {
		var doc struct {
			Items []fileItem `yaml:"items"`
		}
		if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("parse questionnaire: %w", err2)
		}
		raw = doc.Items
	}

	items := make([]domain.QuestionItem, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, fi := range raw {
		label := fi.Trait
		if strings.TrimSpace(label) == "" {
			label = fi.Concept
		}
		reversed := fi.Reversed
		if reversedTagRe.MatchString(label) {
			reversed = true
			label = reversedTagRe.ReplaceAllString(label, "")
		}
		trait, ok := domain.ParseTrait(label)
		if !ok {
			return nil, fmt.Errorf("%w: item %d has unknown trait %q", ErrInvalidItem, i+1, label)
		}
		id := strings.TrimSpace(fi.ID)
		if id == "" {
			id = fmt.Sprintf("q%02d", i+1)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidItem, id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(fi.Answer) == "" {
			continue
		}
		items = append(items, domain.QuestionItem{
			ID:       id,
			Question: strings.TrimSpace(fi.Question),
			Answer:   strings.TrimSpace(fi.Answer),
			Trait:    trait,
			Reversed: reversed,
		})
	}
	if len(items) == 0 {
		return nil, ErrEmptyQuestionnaire
	}
	return items, nil
}
