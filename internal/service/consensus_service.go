package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"trait-consensus/internal/domain"
	"trait-consensus/internal/repository"
)

var (
	ErrNothingGraded       = errors.New("no evaluator graded any segment")
	ErrNotEnoughEvaluators = errors.New("evaluator pool smaller than primary quorum")
)

// ConsensusService orquesta una corrida: segmenta, resuelve cada segmento y agrega el reporte.
type ConsensusService struct {
	grader Grader
	pool   []string
	store  CheckpointStore
	traits repository.TraitRepository
	opts   ConsensusOptions
	logger *zap.Logger
}

// NewConsensusService validates options up front; store may be nil (no checkpoints)
// and traits may be nil (no per-trait rows).
func NewConsensusService(
	grader Grader,
	pool []string,
	store CheckpointStore,
	traits repository.TraitRepository,
	opts ConsensusOptions,
	logger *zap.Logger,
) (*ConsensusService, error) {
	if grader == nil {
		return nil, errors.New("consensus service: grader is required")
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("consensus service: %w", err)
	}
	if len(pool) < opts.PrimaryEvaluatorCount {
		return nil, fmt.Errorf("%w: %d < %d", ErrNotEnoughEvaluators, len(pool), opts.PrimaryEvaluatorCount)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := make([]string, len(pool))
	copy(p, pool)
	return &ConsensusService{
		grader: grader,
		pool:   p,
		store:  store,
		traits: traits,
		opts:   opts,
		logger: logger,
	}, nil
}

// Options returns the engine configuration.
func (s *ConsensusService) Options() ConsensusOptions {
	return s.opts
}

// RunFromSource carga el cuestionario y ejecuta Run.
func (s *ConsensusService) RunFromSource(ctx context.Context, runID, subjectID string, src QuestionnaireSource) (domain.ConsensusReport, error) {
	items, err := src.Load(ctx)
	if err != nil {
		return domain.ConsensusReport{}, fmt.Errorf("load questionnaire: %w", err)
	}
	return s.Run(ctx, runID, subjectID, items)
}

// Run grades items and returns the consensus report. An empty runID starts a new run;
// an existing one resumes from its checkpoints.
func (s *ConsensusService) Run(ctx context.Context, runID, subjectID string, items []domain.QuestionItem) (domain.ConsensusReport, error) {
	if err := validateItems(items); err != nil {
		return domain.ConsensusReport{}, err
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		runID = uuid.NewString()
	}

	segments, err := SegmentItems(items, s.opts.SegmentSize)
	if err != nil {
		return domain.ConsensusReport{}, err
	}

	prior := map[string]domain.SegmentVerdict{}
	if s.store != nil {
		loaded, err := s.store.LoadVerdicts(ctx, runID)
		if err != nil {
			s.logger.Warn("checkpoint load failed, starting fresh", zap.String("run_id", runID), zap.Error(err))
		} else {
			prior = loaded
		}
	}

	s.logger.Info("consensus run started",
		zap.String("run_id", runID),
		zap.String("subject_id", subjectID),
		zap.Int("items", len(items)),
		zap.Int("segments", len(segments)),
		zap.Int("resumed", len(prior)),
	)
	start := time.Now()

	calls := semaphore.NewWeighted(int64(s.opts.WorkerPoolSize))
	controller := NewEscalationController(s.grader, s.pool, s.opts, calls, s.logger)

	verdicts := make([]domain.SegmentVerdict, len(segments))
	var saveMu sync.Mutex
	save := func(v domain.SegmentVerdict) {
		if s.store == nil {
			return
		}
		saveMu.Lock()
		defer saveMu.Unlock()
		if err := s.store.SaveVerdict(ctx, runID, v); err != nil {
			s.logger.Warn("checkpoint save failed",
				zap.String("run_id", runID),
				zap.String("segment_id", v.SegmentID),
				zap.Error(err),
			)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.WorkerPoolSize)
	for i, seg := range segments {
		var p *domain.SegmentVerdict
		if v, ok := prior[seg.ID]; ok {
			p = &v
		}
		g.Go(func() error {
			v, err := controller.Resolve(gctx, seg, p, save)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", seg.ID, err)
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.ConsensusReport{}, err
	}

	report := AggregateVerdicts(verdicts)
	report.RunID = runID
	report.SubjectID = subjectID

	assessed := false
	for _, agg := range report.TraitAggregates {
		assessed = assessed || agg.Assessed
	}
	if !assessed {
		s.logger.Error("consensus run produced no scores", zap.String("run_id", runID))
		return report, ErrNothingGraded
	}

	if s.store != nil {
		if err := s.store.SaveReport(ctx, report); err != nil {
			s.logger.Warn("report save failed", zap.String("run_id", runID), zap.Error(err))
		}
	}
	if s.traits != nil {
		if err := s.traits.UpsertAll(ctx, traitScores(report)); err != nil {
			s.logger.Warn("trait upsert failed", zap.String("run_id", runID), zap.Error(err))
			return report, fmt.Errorf("trait upsert: %w", err)
		}
	}

	s.logger.Info("consensus run finished",
		zap.String("run_id", runID),
		zap.String("mbti", report.MBTICode),
		zap.Float64("overall_confidence", report.OverallConfidence),
		zap.Strings("disputed_segments", report.DisputedSegmentIDs),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// Report returns a stored report.
func (s *ConsensusService) Report(ctx context.Context, runID string) (domain.ConsensusReport, error) {
	if s.store == nil {
		return domain.ConsensusReport{}, domain.ErrReportNotFound
	}
	return s.store.LoadReport(ctx, runID)
}

// TraitScores returns the persisted per-trait rows of a run.
func (s *ConsensusService) TraitScores(ctx context.Context, runID string) ([]domain.TraitScore, error) {
	if s.traits == nil {
		report, err := s.Report(ctx, runID)
		if err != nil {
			return nil, err
		}
		return traitScores(report), nil
	}
	return s.traits.FindByRunID(ctx, runID)
}

func validateItems(items []domain.QuestionItem) error {
	if len(items) == 0 {
		return ErrEmptyQuestionnaire
	}
	seen := make(map[string]struct{}, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.ID) == "" {
			return fmt.Errorf("%w: item %d has no id", ErrInvalidItem, i+1)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidItem, it.ID)
		}
		seen[it.ID] = struct{}{}
		if !it.Trait.Valid() {
			return fmt.Errorf("%w: item %s has unknown trait %q", ErrInvalidItem, it.ID, it.Trait)
		}
	}
	return nil
}

func traitScores(report domain.ConsensusReport) []domain.TraitScore {
	now := time.Now().UTC()
	out := make([]domain.TraitScore, 0, len(domain.BigFive))
	for _, t := range domain.BigFive {
		agg, ok := report.TraitAggregates[t]
		if !ok || !agg.Assessed {
			continue
		}
		out = append(out, domain.TraitScore{
			ID:          uuid.NewString(),
			RunID:       report.RunID,
			SubjectID:   report.SubjectID,
			Trait:       t,
			Mean:        agg.Mean,
			Scaled:      agg.Scaled(100),
			Confidence:  agg.Confidence,
			SampleCount: agg.SampleCount,
			Degraded:    agg.Degraded,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return out
}
