package service

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"trait-consensus/internal/domain"
)

type fakeTraitRepo struct {
	mu     sync.Mutex
	rows   map[string][]domain.TraitScore
	failOn error
}

func (r *fakeTraitRepo) UpsertAll(_ context.Context, scores []domain.TraitScore) error {
	if r.failOn != nil {
		return r.failOn
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows == nil {
		r.rows = make(map[string][]domain.TraitScore)
	}
	for _, s := range scores {
		r.rows[s.RunID] = append(r.rows[s.RunID], s)
	}
	return nil
}

func (r *fakeTraitRepo) FindByRunID(_ context.Context, runID string) ([]domain.TraitScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[runID], nil
}

func bankItems() []domain.QuestionItem {
	questions := DefaultQuestions()
	items := make([]domain.QuestionItem, len(questions))
	for i, q := range questions {
		items[i] = domain.QuestionItem{ID: q.ID, Question: q.Text, Answer: "respuesta", Trait: q.Trait, Reversed: q.Reversed}
	}
	return items
}

// literalGrader answers per item. trait gives the intended trait level for each
// evaluator; reversed items get the literal 6-v, as a careful grader would write them.
func literalGrader(trait func(evaluatorID string, t domain.Trait) int, ids ...string) *scriptedGrader {
	g := newScriptedGrader()
	for _, id := range ids {
		g.scripts[id] = func(seg domain.Segment) (domain.RawScoreSet, error) {
			set := domain.RawScoreSet{EvaluatorID: id, ItemScores: map[string]string{}}
			for _, it := range seg.Items {
				v := trait(id, it.Trait)
				if it.Reversed {
					v = domain.ScaleReverse - v
				}
				set.ItemScores[it.ID] = strconv.Itoa(v)
			}
			return set, nil
		}
	}
	return g
}

func fixedLevels(levels map[domain.Trait]int) func(string, domain.Trait) int {
	return func(_ string, t domain.Trait) int { return levels[t] }
}

func TestConsensusService_RunAgreeingEvaluators(t *testing.T) {
	// los tres items de cada rasgo caen en el mismo segmento (size 3), uno invertido
	g := literalGrader(fixedLevels(map[domain.Trait]int{
		domain.TraitOpenness:          5,
		domain.TraitConscientiousness: 1,
		domain.TraitExtraversion:      5,
		domain.TraitAgreeableness:     3,
		domain.TraitNeuroticism:       1,
	}), "m1", "m2", "m3")
	store := NewMemoryCheckpointStore()
	repo := &fakeTraitRepo{}

	svc, err := NewConsensusService(g, []string{"m1", "m2", "m3"}, store, repo, DefaultConsensusOptions(), zap.NewNop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	report, err := svc.Run(context.Background(), "run-1", "agent-7", bankItems())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.RunID != "run-1" || report.SubjectID != "agent-7" || report.SegmentCount != 5 {
		t.Fatalf("unexpected report header %+v", report)
	}
	if report.OverallConfidence != 1.0 {
		t.Fatalf("expected overall 1, got %v", report.OverallConfidence)
	}
	if report.MBTICode != "ENTP" {
		t.Fatalf("expected ENTP, got %s", report.MBTICode)
	}
	if !slices.Equal(report.EvaluatorsUsed, []string{"m1", "m2", "m3"}) || len(report.DisputedSegmentIDs) != 0 {
		t.Fatalf("evaluators=%v disputed=%v", report.EvaluatorsUsed, report.DisputedSegmentIDs)
	}
	if g.callCount() != 15 {
		t.Fatalf("expected 15 calls, got %d", g.callCount())
	}

	stored, err := svc.Report(context.Background(), "run-1")
	if err != nil || stored.MBTICode != report.MBTICode {
		t.Fatalf("stored report mismatch: %v %+v", err, stored)
	}

	rows, err := svc.TraitScores(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("trait scores: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.SubjectID != "agent-7" || r.ID == "" {
			t.Fatalf("unexpected row %+v", r)
		}
	}

	verdicts, err := store.LoadVerdicts(context.Background(), "run-1")
	if err != nil || len(verdicts) != 5 {
		t.Fatalf("expected 5 checkpoints, got %d (%v)", len(verdicts), err)
	}
	for _, v := range verdicts {
		if !v.Terminal {
			t.Fatalf("checkpoint %s not terminal", v.SegmentID)
		}
	}
}

func TestConsensusService_DefaultBankWithDisputedTrait(t *testing.T) {
	pool := evaluatorPool(9)
	levels := map[domain.Trait]int{
		domain.TraitOpenness:          5,
		domain.TraitConscientiousness: 1,
		domain.TraitAgreeableness:     3,
		domain.TraitNeuroticism:       1,
	}
	// extraversion alterna 5/1 entre evaluadores impares y pares
	g := literalGrader(func(id string, t domain.Trait) int {
		if t != domain.TraitExtraversion {
			return levels[t]
		}
		n, _ := strconv.Atoi(strings.TrimPrefix(id, "m"))
		if n%2 == 1 {
			return 5
		}
		return 1
	}, pool...)

	svc, err := NewConsensusService(g, pool, nil, nil, DefaultConsensusOptions(), zap.NewNop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	report, err := svc.Run(context.Background(), "run-d", "", bankItems())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	wantMeans := map[domain.Trait]float64{
		domain.TraitOpenness:          5,
		domain.TraitConscientiousness: 1,
		domain.TraitExtraversion:      29.0 / 9.0,
		domain.TraitAgreeableness:     3,
		domain.TraitNeuroticism:       1,
	}
	for tr, want := range wantMeans {
		if got := report.TraitAggregates[tr].Mean; !near(got, want) {
			t.Fatalf("%s: expected mean %v, got %v", tr, want, got)
		}
	}

	ext := report.TraitAggregates[domain.TraitExtraversion]
	if ext.Confidence != 0 || ext.SampleCount != 9 || !ext.Escalated {
		t.Fatalf("disputed trait must keep all 9 values with confidence 0, got %+v", ext)
	}
	if report.PerTraitConfidence[domain.TraitOpenness] != 1 {
		t.Fatalf("settled trait must keep confidence 1")
	}
	if !near(report.OverallConfidence, 0.8) {
		t.Fatalf("expected overall 0.8, got %v", report.OverallConfidence)
	}
	if !slices.Equal(report.DisputedSegmentIDs, []string{"seg-002"}) {
		t.Fatalf("unexpected disputed %v", report.DisputedSegmentIDs)
	}
	if report.MBTICode != "ENTP" {
		t.Fatalf("expected ENTP, got %s", report.MBTICode)
	}
	if len(report.EvaluatorsUsed) != 9 || g.callCount() != 21 {
		t.Fatalf("evaluators=%v calls=%d", report.EvaluatorsUsed, g.callCount())
	}
}

func TestConsensusService_ResumeSkipsTerminalSegments(t *testing.T) {
	levels := fixedLevels(map[domain.Trait]int{
		domain.TraitOpenness:          3,
		domain.TraitConscientiousness: 3,
		domain.TraitExtraversion:      3,
		domain.TraitAgreeableness:     3,
		domain.TraitNeuroticism:       3,
	})
	store := NewMemoryCheckpointStore()
	pool := []string{"m1", "m2", "m3"}

	first := literalGrader(levels, pool...)
	svc, err := NewConsensusService(first, pool, store, nil, DefaultConsensusOptions(), zap.NewNop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.Run(context.Background(), "run-r", "", bankItems()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.callCount() != 15 {
		t.Fatalf("expected 15 calls, got %d", first.callCount())
	}

	second := literalGrader(levels, pool...)
	svc2, err := NewConsensusService(second, pool, store, nil, DefaultConsensusOptions(), zap.NewNop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	report, err := svc2.Run(context.Background(), "run-r", "", bankItems())
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if second.callCount() != 0 {
		t.Fatalf("all segments were already terminal, got %d calls", second.callCount())
	}
	if report.MBTICode != "ISTP" {
		t.Fatalf("expected ISTP, got %s", report.MBTICode)
	}

	rows, err := svc2.TraitScores(context.Background(), "run-r")
	if err != nil || len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d (%v)", len(rows), err)
	}
}

func TestConsensusService_NothingGraded(t *testing.T) {
	g := newScriptedGrader()
	for _, id := range []string{"m1", "m2", "m3"} {
		g.fail(id, domain.GradeTransport)
	}
	svc, err := NewConsensusService(g, []string{"m1", "m2", "m3"}, nil, nil, DefaultConsensusOptions(), zap.NewNop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	report, err := svc.Run(context.Background(), "", "", bankItems()[:3])
	if !errors.Is(err, ErrNothingGraded) {
		t.Fatalf("expected ErrNothingGraded, got %v", err)
	}
	if report.RunID == "" {
		t.Fatalf("a run id is generated when none is given")
	}
	if !slices.Equal(report.DisputedSegmentIDs, []string{"seg-000"}) || report.OverallConfidence != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestConsensusService_TraitRepoFailure(t *testing.T) {
	g := newScriptedGrader().score("m1", "5").score("m2", "5").score("m3", "5")
	repo := &fakeTraitRepo{failOn: errors.New("db down")}
	svc, err := NewConsensusService(g, []string{"m1", "m2", "m3"}, nil, repo, DefaultConsensusOptions(), zap.NewNop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Run(context.Background(), "r", "", bankItems()[:3])
	if err == nil || !strings.Contains(err.Error(), "trait upsert") {
		t.Fatalf("expected trait upsert error, got %v", err)
	}
}

func TestConsensusService_Validation(t *testing.T) {
	g := newScriptedGrader()

	if _, err := NewConsensusService(g, []string{"m1", "m2"}, nil, nil, DefaultConsensusOptions(), nil); !errors.Is(err, ErrNotEnoughEvaluators) {
		t.Fatalf("expected ErrNotEnoughEvaluators, got %v", err)
	}

	bad := DefaultConsensusOptions()
	bad.SegmentSize = 0
	if _, err := NewConsensusService(g, []string{"m1", "m2", "m3"}, nil, nil, bad, nil); err == nil {
		t.Fatalf("expected options error")
	}

	svc, err := NewConsensusService(g, []string{"m1", "m2", "m3"}, nil, nil, DefaultConsensusOptions(), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.Run(context.Background(), "", "", nil); !errors.Is(err, ErrEmptyQuestionnaire) {
		t.Fatalf("expected ErrEmptyQuestionnaire, got %v", err)
	}
	if _, err := svc.Run(context.Background(), "", "", []domain.QuestionItem{{ID: "a", Trait: "humor"}}); !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem for unknown trait, got %v", err)
	}
	dup := []domain.QuestionItem{
		{ID: "a", Trait: domain.TraitOpenness},
		{ID: "a", Trait: domain.TraitOpenness},
	}
	if _, err := svc.Run(context.Background(), "", "", dup); !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem for duplicate id, got %v", err)
	}
	if _, err := svc.Report(context.Background(), "x"); !errors.Is(err, domain.ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}

func TestConsensusService_RunFromSource(t *testing.T) {
	g := newScriptedGrader().score("m1", "4.7").score("m2", "4.7").score("m3", "4.7")
	svc, err := NewConsensusService(g, []string{"m1", "m2", "m3"}, nil, nil, DefaultConsensusOptions(), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	src := FromResponses(map[string]string{"q01": "Me encanta explorar."}, nil)
	report, err := svc.RunFromSource(context.Background(), "", "", src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	agg := report.TraitAggregates[domain.TraitOpenness]
	if !agg.Assessed || !near(agg.Mean, 5.0) {
		t.Fatalf("unexpected openness aggregate %+v", agg)
	}
	if report.TraitAggregates[domain.TraitNeuroticism].Assessed {
		t.Fatalf("neuroticism was never asked")
	}
	// una sola dimension evaluada con acuerdo total: 1/5
	if !near(report.OverallConfidence, 0.2) {
		t.Fatalf("expected overall 0.2, got %v", report.OverallConfidence)
	}
	if report.MBTICode != "XNXX" {
		t.Fatalf("expected XNXX, got %s", report.MBTICode)
	}
}
