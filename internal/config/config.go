package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	LLMAPIKey       string   `env:"LLM_API_KEY,required,notEmpty"`
	LLMBaseURL      string   `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	EvaluatorModels []string `env:"EVALUATOR_MODELS" envSeparator:"," envDefault:"gpt-4o,gpt-4o-mini,gpt-4.1,gpt-4.1-mini,o4-mini,gpt-4.1-nano,gpt-5-mini,gpt-5.1,gpt-5-nano"`

	SegmentSize           int           `env:"SEGMENT_SIZE" envDefault:"3"`
	PrimaryEvaluatorCount int           `env:"PRIMARY_EVALUATOR_COUNT" envDefault:"3"`
	ModelsPerRound        int           `env:"MODELS_PER_ROUND" envDefault:"2"`
	DisputeThreshold      float64       `env:"DISPUTE_THRESHOLD" envDefault:"2"`
	MaxEscalationRounds   int           `env:"MAX_ESCALATION_ROUNDS" envDefault:"3"`
	MaxSubstitutions      int           `env:"MAX_SUBSTITUTIONS" envDefault:"3"`
	WorkerPoolSize        int           `env:"WORKER_POOL_SIZE" envDefault:"4"`
	EvaluatorTimeout      time.Duration `env:"EVALUATOR_TIMEOUT" envDefault:"60s"`
	NeutralFallback       bool          `env:"NEUTRAL_FALLBACK" envDefault:"false"`

	QuestionnaireFile string `env:"QUESTIONNAIRE_FILE"`
	RubricFile        string `env:"RUBRIC_FILE"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	CheckpointTTL time.Duration `env:"CHECKPOINT_TTL" envDefault:"168h"`

	JWTSecret       string        `env:"JWT_SECRET"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"5"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rechaza combinaciones que el motor de consenso no puede ejecutar.
func (c *Config) Validate() error {
	var errs []error
	if c.SegmentSize < 1 {
		errs = append(errs, fmt.Errorf("SEGMENT_SIZE must be >= 1, got %d", c.SegmentSize))
	}
	if c.PrimaryEvaluatorCount < 1 {
		errs = append(errs, fmt.Errorf("PRIMARY_EVALUATOR_COUNT must be >= 1, got %d", c.PrimaryEvaluatorCount))
	}
	if c.ModelsPerRound < 1 {
		errs = append(errs, fmt.Errorf("MODELS_PER_ROUND must be >= 1, got %d", c.ModelsPerRound))
	}
	if c.DisputeThreshold <= 0 {
		errs = append(errs, fmt.Errorf("DISPUTE_THRESHOLD must be > 0, got %v", c.DisputeThreshold))
	}
	if c.MaxEscalationRounds < 0 {
		errs = append(errs, fmt.Errorf("MAX_ESCALATION_ROUNDS must be >= 0, got %d", c.MaxEscalationRounds))
	}
	if c.MaxSubstitutions < 0 {
		errs = append(errs, fmt.Errorf("MAX_SUBSTITUTIONS must be >= 0, got %d", c.MaxSubstitutions))
	}
	if c.WorkerPoolSize < 1 {
		errs = append(errs, fmt.Errorf("WORKER_POOL_SIZE must be >= 1, got %d", c.WorkerPoolSize))
	}
	if c.EvaluatorTimeout <= 0 {
		errs = append(errs, fmt.Errorf("EVALUATOR_TIMEOUT must be > 0, got %s", c.EvaluatorTimeout))
	}
	if len(c.EvaluatorModels) < c.PrimaryEvaluatorCount {
		errs = append(errs, fmt.Errorf("EVALUATOR_MODELS has %d models, need at least %d", len(c.EvaluatorModels), c.PrimaryEvaluatorCount))
	}
	return errors.Join(errs...)
}
