package http

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"trait-consensus/internal/domain"
	"trait-consensus/internal/service"
)

// ConsensusRunner es la parte del motor que expone la API.
type ConsensusRunner interface {
	Run(ctx context.Context, runID, subjectID string, items []domain.QuestionItem) (domain.ConsensusReport, error)
	Report(ctx context.Context, runID string) (domain.ConsensusReport, error)
	TraitScores(ctx context.Context, runID string) ([]domain.TraitScore, error)
}

// EvaluationHandler maneja los endpoints de evaluaciones.
type EvaluationHandler struct {
	runner  ConsensusRunner
	limiter service.RunRateLimiter
	logger  *zap.Logger
}

func NewEvaluationHandler(runner ConsensusRunner, limiter service.RunRateLimiter, logger *zap.Logger) *EvaluationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationHandler{runner: runner, limiter: limiter, logger: logger}
}

type createEvaluationRequest struct {
	RunID     string                `json:"run_id"`
	SubjectID string                `json:"subject_id"`
	Responses map[string]string     `json:"responses"`
	Items     []domain.QuestionItem `json:"items"`
}

type traitView struct {
	domain.TraitAggregate
	Scaled float64 `json:"scaled"`
}

type evaluationResponse struct {
	domain.ConsensusReport
	Traits []traitView `json:"traits"`
}

func newEvaluationResponse(report domain.ConsensusReport) evaluationResponse {
	resp := evaluationResponse{ConsensusReport: report}
	for _, t := range domain.BigFive {
		agg, ok := report.TraitAggregates[t]
		if !ok {
			continue
		}
		resp.Traits = append(resp.Traits, traitView{TraitAggregate: agg, Scaled: agg.Scaled(100)})
	}
	return resp
}

// Health maneja GET /health.
func (h *EvaluationHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Questionnaire maneja GET /questionnaire.
func (h *EvaluationHandler) Questionnaire(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"questions": service.DefaultQuestions()})
}

// CreateEvaluation maneja POST /evaluations. Corre el motor de forma sincronica.
func (h *EvaluationHandler) CreateEvaluation(c *gin.Context) {
	var req createEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid evaluation request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if h.limiter != nil && !h.limiter.Allow(callerKey(c)) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many evaluations"})
		return
	}

	// con JWT cada cliente tiene su propio espacio de run ids
	scope := runScope(c)
	runID := strings.TrimSpace(req.RunID)
	if scope != "" {
		if strings.Contains(runID, "/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "run_id must not contain '/'"})
			return
		}
		if runID == "" {
			runID = uuid.NewString()
		}
		runID = scope + runID
	}

	ctx := c.Request.Context()
	items := req.Items
	if len(items) == 0 {
		loaded, err := service.FromResponses(req.Responses, h.logger).Load(ctx)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		items = loaded
	}

	report, err := h.runner.Run(ctx, runID, strings.TrimSpace(req.SubjectID), items)
	report.RunID = strings.TrimPrefix(report.RunID, scope)
	switch {
	case errors.Is(err, service.ErrEmptyQuestionnaire), errors.Is(err, service.ErrInvalidItem):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrNothingGraded):
		h.logger.Warn("evaluation produced no scores", zap.String("run_id", report.RunID))
		c.JSON(http.StatusBadGateway, gin.H{"error": "no evaluator could grade the questionnaire", "run_id": report.RunID})
		return
	case err != nil:
		h.logger.Error("evaluation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
		return
	}

	c.JSON(http.StatusCreated, newEvaluationResponse(report))
}

// GetEvaluation maneja GET /evaluations/:id.
func (h *EvaluationHandler) GetEvaluation(c *gin.Context) {
	scope := runScope(c)
	runID := scope + strings.TrimSpace(c.Param("id"))
	report, err := h.runner.Report(c.Request.Context(), runID)
	if errors.Is(err, domain.ErrReportNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "evaluation not found"})
		return
	}
	if err != nil {
		h.logger.Error("load evaluation failed", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load evaluation"})
		return
	}
	report.RunID = strings.TrimPrefix(report.RunID, scope)
	c.JSON(http.StatusOK, newEvaluationResponse(report))
}

// GetTraitScores maneja GET /evaluations/:id/traits.
func (h *EvaluationHandler) GetTraitScores(c *gin.Context) {
	scope := runScope(c)
	runID := strings.TrimSpace(c.Param("id"))
	scores, err := h.runner.TraitScores(c.Request.Context(), scope+runID)
	if errors.Is(err, domain.ErrReportNotFound) || (err == nil && len(scores) == 0) {
		c.JSON(http.StatusNotFound, gin.H{"error": "evaluation not found"})
		return
	}
	if err != nil {
		h.logger.Error("load trait scores failed", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load trait scores"})
		return
	}
	scores = slices.Clone(scores)
	for i := range scores {
		scores[i].RunID = strings.TrimPrefix(scores[i].RunID, scope)
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "traits": scores})
}
