package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"trait-consensus/internal/domain"
	"trait-consensus/internal/llm"
)

// Grader asks one evaluator to grade one segment.
type Grader interface {
	Grade(ctx context.Context, seg domain.Segment, evaluatorID string) (domain.RawScoreSet, error)
}

// EvaluatorGateway construye el prompt, hace exactamente una llamada al evaluador y parsea la respuesta.
// No reintenta: los fallos vuelven como *domain.GradeError para que el controlador pida un reemplazo.
type EvaluatorGateway struct {
	registry *llm.Registry
	rubric   Rubric
	timeout  time.Duration
	logger   *zap.Logger
}

func NewEvaluatorGateway(registry *llm.Registry, rubric Rubric, timeout time.Duration, logger *zap.Logger) *EvaluatorGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluatorGateway{
		registry: registry,
		rubric:   rubric,
		timeout:  timeout,
		logger:   logger,
	}
}

func (g *EvaluatorGateway) Grade(ctx context.Context, seg domain.Segment, evaluatorID string) (domain.RawScoreSet, error) {
	ev, err := g.registry.Get(evaluatorID)
	if err != nil {
		return domain.RawScoreSet{}, &domain.GradeError{Kind: domain.GradeTransport, EvaluatorID: evaluatorID, SegmentID: seg.ID, Err: err}
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := ev.Evaluate(callCtx, g.rubric.SystemPrompt(), BuildGradingPrompt(seg))
	latency := time.Since(start)
	if err != nil {
		kind := domain.GradeTransport
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			kind = domain.GradeTimeout
		}
		g.logger.Warn("evaluator call failed",
			zap.String("segment_id", seg.ID),
			zap.String("evaluator", evaluatorID),
			zap.String("kind", string(kind)),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return domain.RawScoreSet{}, &domain.GradeError{Kind: kind, EvaluatorID: evaluatorID, SegmentID: seg.ID, Err: err}
	}

	set, err := ParseScoreResponse(raw)
	if err != nil {
		g.logger.Warn("evaluator response unparseable",
			zap.String("segment_id", seg.ID),
			zap.String("evaluator", evaluatorID),
			zap.Int("response_len", len(raw)),
		)
		return domain.RawScoreSet{}, &domain.GradeError{Kind: domain.GradeUnparseable, EvaluatorID: evaluatorID, SegmentID: seg.ID, Err: err}
	}
	set.EvaluatorID = evaluatorID

	unknown := resolveItemKeys(seg, &set)
	if len(unknown) > 0 {
		g.logger.Warn("dropping scores for items not in segment",
			zap.String("segment_id", seg.ID),
			zap.String("evaluator", evaluatorID),
			zap.Strings("keys", unknown),
		)
	}
	if set.Empty() {
		return domain.RawScoreSet{}, &domain.GradeError{Kind: domain.GradeUnparseable, EvaluatorID: evaluatorID, SegmentID: seg.ID, Err: domain.ErrNoScorePayload}
	}

	g.logger.Debug("segment graded",
		zap.String("segment_id", seg.ID),
		zap.String("evaluator", evaluatorID),
		zap.String("strategy", set.Strategy),
		zap.Int("items", len(set.ItemScores)),
		zap.Int("traits", len(set.Scores)),
		zap.Duration("latency", latency),
	)
	return set, nil
}

// resolveItemKeys rewrites the item keys of set to segment item ids.
// Una clave vale si coincide con el id (sin distinguir mayusculas) o es la posicion 1-based del prompt;
// si ambas formas apuntan al mismo item gana el id. Devuelve las claves descartadas.
func resolveItemKeys(seg domain.Segment, set *domain.RawScoreSet) []string {
	if len(set.ItemScores) == 0 {
		return nil
	}
	scores := make(map[string]string, len(set.ItemScores))
	byID := make(map[string]bool, len(set.ItemScores))
	var evidence map[string]string
	var unknown []string
	for _, key := range slices.Sorted(maps.Keys(set.ItemScores)) {
		id, exact, ok := matchItemKey(seg, key)
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		if _, dup := scores[id]; dup && (byID[id] || !exact) {
			continue
		}
		scores[id] = set.ItemScores[key]
		byID[id] = exact
		delete(evidence, id)
		if ev, ok := set.ItemEvidence[key]; ok {
			if evidence == nil {
				evidence = make(map[string]string)
			}
			evidence[id] = ev
		}
	}
	set.ItemScores = scores
	set.ItemEvidence = evidence
	if len(set.ItemScores) == 0 {
		set.ItemScores = nil
	}
	return unknown
}

func matchItemKey(seg domain.Segment, key string) (id string, exact bool, ok bool) {
	key = strings.TrimSpace(key)
	for _, it := range seg.Items {
		if strings.EqualFold(it.ID, key) {
			return it.ID, true, true
		}
	}
	n, err := strconv.Atoi(strings.Trim(key, "[]# "))
	if err != nil || n < 1 || n > len(seg.Items) {
		return "", false, false
	}
	return seg.Items[n-1].ID, false, true
}
