package service

import (
	"context"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"trait-consensus/internal/domain"
)

// EscalationController lleva cada (segmento, rasgo) a un estado terminal:
// UNGRADED -> PARTIAL -> SETTLED | DISPUTED -> ESCALATED(k) -> SETTLED | EXHAUSTED.
//
// Resolve must be called from a single goroutine per segment; that goroutine owns the
// SegmentVerdict, including the set of used evaluators. Only evaluator calls fan out.
type EscalationController struct {
	grader  Grader
	pool    []string
	opts    ConsensusOptions
	calls   *semaphore.Weighted
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewEscalationController wires a controller. calls bounds concurrent outbound
// evaluator calls and is usually shared by every segment of a run.
func NewEscalationController(grader Grader, pool []string, opts ConsensusOptions, calls *semaphore.Weighted, logger *zap.Logger) *EscalationController {
	if logger == nil {
		logger = zap.NewNop()
	}
	if calls == nil {
		calls = semaphore.NewWeighted(int64(max(opts.WorkerPoolSize, 1)))
	}
	p := make([]string, len(pool))
	copy(p, pool)
	return &EscalationController{
		grader:  grader,
		pool:    p,
		opts:    opts,
		calls:   calls,
		logger:  logger,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Resolve drives seg to a terminal verdict. prior, when it matches the segment, is
// resumed instead of starting from UNGRADED. save is called after the primary phase,
// after every escalation round and once more at the end; nil disables checkpoints.
func (c *EscalationController) Resolve(ctx context.Context, seg domain.Segment, prior *domain.SegmentVerdict, save func(domain.SegmentVerdict)) (domain.SegmentVerdict, error) {
	if save == nil {
		save = func(domain.SegmentVerdict) {}
	}

	v := domain.NewSegmentVerdict(seg)
	if prior != nil && prior.MatchesSegment(seg) {
		v = cloneVerdict(*prior)
		if v.Terminal {
			return v, nil
		}
	}

	if v.Round == 0 {
		qerr := c.fillQuorum(ctx, seg, &v, c.opts.PrimaryEvaluatorCount-len(v.Scores))
		if err := ctx.Err(); err != nil {
			return v, err
		}
		c.classifyPrimary(&v, qerr)
		v.UpdatedAt = c.nowFunc()
		save(v)
	}

	for hasOpenDispute(v) && v.Round < c.opts.MaxEscalationRounds {
		v.Round++
		for t, tv := range v.Traits {
			if tv.Status == domain.StatusDisputed || tv.Status == domain.StatusEscalated {
				tv.Status = domain.StatusEscalated
				tv.Escalated = true
				tv.Round = v.Round
				v.Traits[t] = tv
			}
		}
		c.logger.Info("segment escalated",
			zap.String("segment_id", seg.ID),
			zap.Int("round", v.Round),
			zap.Int("requested", c.opts.ModelsPerRound),
		)

		qerr := c.fillQuorum(ctx, seg, &v, c.opts.ModelsPerRound)
		if err := ctx.Err(); err != nil {
			return v, err
		}
		if qerr != nil {
			c.logQuorum(seg, qerr)
			c.forceSettle(&v, true)
			break
		}
		for t, tv := range v.Traits {
			if tv.Status != domain.StatusEscalated {
				continue
			}
			values, evaluators := v.ValuesFor(t)
			if AssessDispute(values, c.opts.DisputeThreshold) == Agreed {
				v.Traits[t] = settle(tv, domain.StatusSettled, values, evaluators, false)
			}
		}
		v.UpdatedAt = c.nowFunc()
		save(v)
	}

	c.forceSettle(&v, false)
	v.Terminal = true
	v.UpdatedAt = c.nowFunc()
	save(v)
	return v, nil
}

// classifyPrimary applies the PARTIAL -> SETTLED | DISPUTED transition once the
// primary quorum has been requested. A quorum failure force-settles as degraded.
func (c *EscalationController) classifyPrimary(v *domain.SegmentVerdict, qerr error) {
	if qerr != nil {
		c.logQuorumID(v.SegmentID, qerr)
	}
	for t, tv := range v.Traits {
		if tv.Status.Terminal() {
			continue
		}
		values, evaluators := v.ValuesFor(t)
		if qerr != nil {
			v.Traits[t] = settle(tv, domain.StatusExhausted, values, evaluators, true)
			continue
		}
		switch AssessDispute(values, c.opts.DisputeThreshold) {
		case Agreed:
			v.Traits[t] = settle(tv, domain.StatusSettled, values, evaluators, false)
		case Disputed:
			tv.Status = domain.StatusDisputed
			v.Traits[t] = tv
		default:
			// quorum filled but nobody scored this trait
			v.Traits[t] = settle(tv, domain.StatusExhausted, nil, nil, true)
		}
	}
}

// forceSettle resolves every non-terminal trait as EXHAUSTED with the lower median.
func (c *EscalationController) forceSettle(v *domain.SegmentVerdict, degraded bool) {
	for t, tv := range v.Traits {
		if tv.Status.Terminal() {
			continue
		}
		values, evaluators := v.ValuesFor(t)
		v.Traits[t] = settle(tv, domain.StatusExhausted, values, evaluators, degraded)
		c.logger.Info("trait force-settled",
			zap.String("segment_id", v.SegmentID),
			zap.String("trait", string(t)),
			zap.Int("values", len(values)),
			zap.Int("resolved", v.Traits[t].Resolved),
			zap.Bool("degraded", v.Traits[t].Degraded),
		)
	}
}

func settle(tv domain.TraitVerdict, status domain.TraitStatus, values []int, evaluators []string, degraded bool) domain.TraitVerdict {
	tv.Status = status
	tv.Values = values
	tv.Evaluators = evaluators
	tv.Degraded = degraded || len(values) == 0
	tv.Resolved = 0
	if len(values) > 0 {
		tv.Resolved = LowerMedian(values)
	}
	return tv
}

func hasOpenDispute(v domain.SegmentVerdict) bool {
	for _, tv := range v.Traits {
		if tv.Status == domain.StatusDisputed || tv.Status == domain.StatusEscalated {
			return true
		}
	}
	return false
}

type gradeResult struct {
	evaluatorID string
	set         domain.RawScoreSet
	err         error
}

// fillQuorum requests evaluators until need successful gradings were added.
// Failed calls do not count; each failure triggers a replacement request until
// MaxSubstitutions is spent or the pool runs out, which yields a QuorumExhaustedError.
func (c *EscalationController) fillQuorum(ctx context.Context, seg domain.Segment, v *domain.SegmentVerdict, need int) error {
	if need <= 0 {
		return nil
	}
	got, failures := 0, 0
	for got < need {
		batch := c.pickUnused(*v, need-got)
		if len(batch) == 0 {
			return &domain.QuorumExhaustedError{SegmentID: seg.ID, Needed: need, Got: got, Failures: failures}
		}
		for _, r := range c.gradeBatch(ctx, seg, batch) {
			v.Used = append(v.Used, r.evaluatorID)
			if r.err != nil {
				v.Failed = append(v.Failed, r.evaluatorID)
				failures++
				continue
			}
			set, err := c.normalizeSet(seg, r.set)
			if err != nil {
				v.Failed = append(v.Failed, r.evaluatorID)
				failures++
				continue
			}
			v.Scores = append(v.Scores, set)
			got++
			for t := range set.Scores {
				if tv, ok := v.Traits[t]; ok && tv.Status == domain.StatusUngraded {
					tv.Status = domain.StatusPartial
					v.Traits[t] = tv
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if got < need && failures > c.opts.MaxSubstitutions {
			return &domain.QuorumExhaustedError{SegmentID: seg.ID, Needed: need, Got: got, Failures: failures}
		}
	}
	return nil
}

// pickUnused returns up to n evaluators from the pool that never touched this segment.
func (c *EscalationController) pickUnused(v domain.SegmentVerdict, n int) []string {
	out := make([]string, 0, n)
	for _, id := range c.pool {
		if len(out) == n {
			break
		}
		if !v.HasUsed(id) {
			out = append(out, id)
		}
	}
	return out
}

// gradeBatch fans out one call per evaluator; results keep batch order.
func (c *EscalationController) gradeBatch(ctx context.Context, seg domain.Segment, batch []string) []gradeResult {
	results := make([]gradeResult, len(batch))
	var g errgroup.Group
	for i, id := range batch {
		g.Go(func() error {
			results[i].evaluatorID = id
			if err := c.calls.Acquire(ctx, 1); err != nil {
				results[i].err = &domain.GradeError{Kind: domain.GradeTransport, EvaluatorID: id, SegmentID: seg.ID, Err: err}
				return nil
			}
			defer c.calls.Release(1)
			results[i].set, results[i].err = c.grader.Grade(ctx, seg, id)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// normalizeSet aplica bucketing + correccion inversa item por item y proyecta cada
// rasgo al bucket de la media de sus items. Un puntaje por rasgo solo se acepta
// si todos los items de ese rasgo comparten la marca de inversion.
// Scores no numericos se descartan (o se reemplazan por 3 si NeutralFallback esta activo).
func (c *EscalationController) normalizeSet(seg domain.Segment, raw domain.RawScoreSet) (domain.NormalizedScoreSet, error) {
	out := domain.NormalizedScoreSet{
		EvaluatorID: raw.EvaluatorID,
		Scores:      make(map[domain.Trait]int),
		Confidence:  raw.Confidence,
	}

	perTrait := make(map[domain.Trait][]int)
	for _, it := range seg.Items {
		token, ok := raw.ItemScores[it.ID]
		if !ok {
			continue
		}
		val, ok := c.normalizeToken(seg, raw.EvaluatorID, it.Trait, token, it.Reversed, &out)
		if !ok {
			continue
		}
		if out.ItemScores == nil {
			out.ItemScores = make(map[string]int)
		}
		out.ItemScores[it.ID] = val
		perTrait[it.Trait] = append(perTrait[it.Trait], val)
		if ev := raw.ItemEvidence[it.ID]; ev != "" {
			setEvidence(&out, it.Trait, ev)
		}
	}

	for _, t := range seg.Traits() {
		if vals := perTrait[t]; len(vals) > 0 {
			out.Scores[t] = BucketScore(mean(vals))
			if ev := raw.Evidence[t]; ev != "" {
				setEvidence(&out, t, ev)
			}
			continue
		}
		token, ok := raw.Scores[t]
		if !ok {
			continue
		}
		reversed, uniform := seg.UniformReversal(t)
		if !uniform {
			c.logger.Warn("ignoring trait-level score for segment with mixed reversed items",
				zap.String("segment_id", seg.ID),
				zap.String("evaluator", raw.EvaluatorID),
				zap.String("trait", string(t)),
			)
			continue
		}
		val, ok := c.normalizeToken(seg, raw.EvaluatorID, t, token, reversed, &out)
		if !ok {
			continue
		}
		out.Scores[t] = val
		if ev := raw.Evidence[t]; ev != "" {
			setEvidence(&out, t, ev)
		}
	}

	if len(out.Scores) == 0 {
		return domain.NormalizedScoreSet{}, &domain.GradeError{
			Kind:        domain.GradeUnparseable,
			EvaluatorID: raw.EvaluatorID,
			SegmentID:   seg.ID,
			Err:         domain.ErrNoScorePayload,
		}
	}
	return out, nil
}

// normalizeToken devuelve false cuando el token se descarta.
func (c *EscalationController) normalizeToken(seg domain.Segment, evaluatorID string, t domain.Trait, token string, reversed bool, out *domain.NormalizedScoreSet) (int, bool) {
	val, err := NormalizeRaw(t, token, reversed)
	if err == nil {
		return val, true
	}
	fields := []zap.Field{
		zap.String("segment_id", seg.ID),
		zap.String("evaluator", evaluatorID),
		zap.String("trait", string(t)),
		zap.String("raw", token),
	}
	if !c.opts.NeutralFallback {
		c.logger.Warn("dropping malformed score", fields...)
		return 0, false
	}
	c.logger.Warn("neutral fallback applied to malformed score", fields...)
	if !slices.Contains(out.Fallback, t) {
		out.Fallback = append(out.Fallback, t)
	}
	return domain.ScaleMid, true
}

func setEvidence(out *domain.NormalizedScoreSet, t domain.Trait, ev string) {
	if out.Evidence == nil {
		out.Evidence = make(map[domain.Trait]string)
	}
	if _, ok := out.Evidence[t]; !ok {
		out.Evidence[t] = ev
	}
}

func (c *EscalationController) logQuorum(seg domain.Segment, err error) {
	c.logQuorumID(seg.ID, err)
}

func (c *EscalationController) logQuorumID(segmentID string, err error) {
	c.logger.Warn("quorum exhausted, force-settling as degraded",
		zap.String("segment_id", segmentID),
		zap.Error(err),
	)
}

func cloneVerdict(v domain.SegmentVerdict) domain.SegmentVerdict {
	out := v
	out.ItemIDs = append([]string(nil), v.ItemIDs...)
	out.Used = append([]string(nil), v.Used...)
	out.Failed = append([]string(nil), v.Failed...)
	out.Scores = make([]domain.NormalizedScoreSet, len(v.Scores))
	for i, s := range v.Scores {
		cp := s
		cp.Scores = maps.Clone(s.Scores)
		cp.ItemScores = maps.Clone(s.ItemScores)
		cp.Evidence = maps.Clone(s.Evidence)
		cp.Fallback = slices.Clone(s.Fallback)
		out.Scores[i] = cp
	}
	out.Traits = make(map[domain.Trait]domain.TraitVerdict, len(v.Traits))
	for t, tv := range v.Traits {
		tv.Values = append([]int(nil), tv.Values...)
		tv.Evaluators = append([]string(nil), tv.Evaluators...)
		out.Traits[t] = tv
	}
	return out
}
