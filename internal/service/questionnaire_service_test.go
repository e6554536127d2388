package service

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"trait-consensus/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultQuestions(t *testing.T) {
	questions := DefaultQuestions()
	if len(questions) != 15 {
		t.Fatalf("expected 15 questions, got %d", len(questions))
	}
	perTrait := map[domain.Trait]int{}
	reversed := map[domain.Trait]int{}
	for _, q := range questions {
		perTrait[q.Trait]++
		if q.Reversed {
			reversed[q.Trait]++
		}
	}
	for _, tr := range domain.BigFive {
		if perTrait[tr] != 3 || reversed[tr] != 1 {
			t.Fatalf("trait %s: expected 3 items with 1 reversed, got %d/%d", tr, perTrait[tr], reversed[tr])
		}
	}
}

func TestStaticQuestionnaire_Load(t *testing.T) {
	questions := DefaultQuestions()
	src := FromResponses(map[string]string{
		questions[2].Text:    " respuesta 3 ",
		"q01":                " respuesta 1 ",
		"q05":                "   ",
		"zzz pregunta extra": "extra",
	}, zap.NewNop())

	items, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 answered items, got %d", len(items))
	}
	if items[0].ID != "q01" || items[1].ID != "q03" {
		t.Fatalf("expected bank order q01,q03; got %s,%s", items[0].ID, items[1].ID)
	}
	if items[0].Answer != "respuesta 1" {
		t.Fatalf("answer must be trimmed, got %q", items[0].Answer)
	}
	if !items[1].Reversed || items[1].Trait != domain.TraitOpenness {
		t.Fatalf("q03 must be a reversed openness item, got %+v", items[1])
	}

	if _, err := FromResponses(map[string]string{}, nil).Load(context.Background()); !errors.Is(err, ErrEmptyQuestionnaire) {
		t.Fatalf("expected ErrEmptyQuestionnaire, got %v", err)
	}
}

func TestParseQuestionnaire_Formats(t *testing.T) {
	yamlDoc := `
items:
  - id: a1
    question: Me gusta la fiesta.
    answer: Me encanta.
    trait: Extraversion
  - id: a2
    question: Evito discutir.
    answer: Depende.
    concept: "Agreeableness (R)"
  - id: a3
    question: Me preocupo mucho.
    answer: ""
    trait: neuroticismo
`
	items, err := ParseQuestionnaire([]byte(yamlDoc))
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("unanswered items must be skipped, got %d", len(items))
	}
	if items[1].Trait != domain.TraitAgreeableness || !items[1].Reversed {
		t.Fatalf("expected reversed agreeableness from tag, got %+v", items[1])
	}

	jsonDoc := `[{"question": "Planifico todo.", "answer": "Si.", "trait": "c [reversed]"}]`
	items, err = ParseQuestionnaire([]byte(jsonDoc))
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if items[0].ID != "q01" || items[0].Trait != domain.TraitConscientiousness || !items[0].Reversed {
		t.Fatalf("unexpected item %+v", items[0])
	}

	if _, err := ParseQuestionnaire([]byte(`[{"answer": "x", "trait": "humor"}]`)); !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
	if _, err := ParseQuestionnaire([]byte(`[{"id": "d", "answer": "x", "trait": "o"}, {"id": "d", "answer": "y", "trait": "o"}]`)); !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestFileQuestionnaireSource_Load(t *testing.T) {
	path := t.TempDir() + "/q.yaml"
	writeFile(t, path, "- id: x\n  question: Q\n  answer: A\n  trait: openness\n  reversed: true\n")
	items, err := FileQuestionnaireSource{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(items) != 1 || !items[0].Reversed {
		t.Fatalf("unexpected items %+v", items)
	}
	if _, err := (FileQuestionnaireSource{Path: path + ".missing"}).Load(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
