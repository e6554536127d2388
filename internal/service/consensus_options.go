package service

import (
	"fmt"

	"trait-consensus/internal/config"
)

// ConsensusOptions es la unica superficie de configuracion del motor.
// Se construye una vez y se pasa explicitamente; no hay estado global.
type ConsensusOptions struct {
	SegmentSize           int
	PrimaryEvaluatorCount int
	ModelsPerRound        int
	DisputeThreshold      float64
	MaxEscalationRounds   int
	MaxSubstitutions      int
	WorkerPoolSize        int
	NeutralFallback       bool
}

func DefaultConsensusOptions() ConsensusOptions {
	return ConsensusOptions{
		SegmentSize:           3,
		PrimaryEvaluatorCount: 3,
		ModelsPerRound:        2,
		DisputeThreshold:      2,
		MaxEscalationRounds:   3,
		MaxSubstitutions:      3,
		WorkerPoolSize:        4,
	}
}

// ConsensusOptionsFromConfig maps the env-backed config onto engine options.
func ConsensusOptionsFromConfig(cfg *config.Config) ConsensusOptions {
	return ConsensusOptions{
		SegmentSize:           cfg.SegmentSize,
		PrimaryEvaluatorCount: cfg.PrimaryEvaluatorCount,
		ModelsPerRound:        cfg.ModelsPerRound,
		DisputeThreshold:      cfg.DisputeThreshold,
		MaxEscalationRounds:   cfg.MaxEscalationRounds,
		MaxSubstitutions:      cfg.MaxSubstitutions,
		WorkerPoolSize:        cfg.WorkerPoolSize,
		NeutralFallback:       cfg.NeutralFallback,
	}
}

func (o ConsensusOptions) validate() error {
	switch {
	case o.SegmentSize < 1:
		return fmt.Errorf("segment size must be >= 1, got %d", o.SegmentSize)
	case o.PrimaryEvaluatorCount < 1:
		return fmt.Errorf("primary evaluator count must be >= 1, got %d", o.PrimaryEvaluatorCount)
	case o.ModelsPerRound < 1:
		return fmt.Errorf("models per round must be >= 1, got %d", o.ModelsPerRound)
	case o.DisputeThreshold <= 0:
		return fmt.Errorf("dispute threshold must be > 0, got %v", o.DisputeThreshold)
	case o.MaxEscalationRounds < 0 || o.MaxSubstitutions < 0:
		return fmt.Errorf("escalation rounds and substitutions must be >= 0")
	case o.WorkerPoolSize < 1:
		return fmt.Errorf("worker pool size must be >= 1, got %d", o.WorkerPoolSize)
	}
	return nil
}
