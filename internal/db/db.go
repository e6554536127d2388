package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"trait-consensus/internal/config"
)

// NewPool construye y devuelve un pool de conexiones configurado.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	poolCfg.MaxConns = int32(max(cfg.WorkerPoolSize*2, 4))
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Ping verifica conectividad con la base de datos.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS segment_verdicts (
	run_id        TEXT        NOT NULL,
	segment_id    TEXT        NOT NULL,
	segment_index INTEGER     NOT NULL,
	terminal      BOOLEAN     NOT NULL DEFAULT FALSE,
	payload       JSONB       NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, segment_id)
);

CREATE TABLE IF NOT EXISTS consensus_reports (
	run_id             TEXT PRIMARY KEY,
	subject_id         TEXT,
	mbti_code          TEXT             NOT NULL,
	overall_confidence DOUBLE PRECISION NOT NULL,
	payload            JSONB            NOT NULL,
	created_at         TIMESTAMPTZ      NOT NULL
);

CREATE TABLE IF NOT EXISTS trait_scores (
	id           UUID PRIMARY KEY,
	run_id       TEXT             NOT NULL,
	subject_id   TEXT,
	trait        TEXT             NOT NULL,
	mean         DOUBLE PRECISION NOT NULL,
	scaled       DOUBLE PRECISION NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL,
	sample_count INTEGER          NOT NULL,
	degraded     BOOLEAN          NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ      NOT NULL,
	updated_at   TIMESTAMPTZ      NOT NULL,
	UNIQUE (run_id, trait)
);
`

// EnsureSchema crea las tablas de checkpoints y resultados si no existen.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
