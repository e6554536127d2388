package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trait-consensus/internal/domain"
)

type TraitRepository interface {
	UpsertAll(ctx context.Context, scores []domain.TraitScore) error
	FindByRunID(ctx context.Context, runID string) ([]domain.TraitScore, error)
}

type PgTraitRepository struct {
	pool *pgxpool.Pool
}

func NewPgTraitRepository(pool *pgxpool.Pool) *PgTraitRepository {
	return &PgTraitRepository{pool: pool}
}

// UpsertAll escribe los cinco rasgos de una corrida en una sola transaccion.
func (r *PgTraitRepository) UpsertAll(ctx context.Context, scores []domain.TraitScore) error {
	const query = `
		INSERT INTO trait_scores (id, run_id, subject_id, trait, mean, scaled, confidence, sample_count, degraded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, trait)
		DO UPDATE SET
			mean = EXCLUDED.mean,
			scaled = EXCLUDED.scaled,
			confidence = EXCLUDED.confidence,
			sample_count = EXCLUDED.sample_count,
			degraded = EXCLUDED.degraded,
			updated_at = EXCLUDED.updated_at
	`
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, s := range scores {
			if _, err := tx.Exec(ctx, query,
				s.ID,
				s.RunID,
				s.SubjectID,
				string(s.Trait),
				s.Mean,
				s.Scaled,
				s.Confidence,
				s.SampleCount,
				s.Degraded,
				s.CreatedAt,
				s.UpdatedAt,
			); err != nil {
				return fmt.Errorf("upsert trait %s: %w", s.Trait, err)
			}
		}
		return nil
	})
}

func (r *PgTraitRepository) FindByRunID(ctx context.Context, runID string) ([]domain.TraitScore, error) {
	const query = `
		SELECT id, run_id, subject_id, trait, mean, scaled, confidence, sample_count, degraded, created_at, updated_at
		FROM trait_scores
		WHERE run_id = $1
		ORDER BY trait
	`

	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []domain.TraitScore
	for rows.Next() {
		var s domain.TraitScore
		var trait string
		if err := rows.Scan(
			&s.ID,
			&s.RunID,
			&s.SubjectID,
			&trait,
			&s.Mean,
			&s.Scaled,
			&s.Confidence,
			&s.SampleCount,
			&s.Degraded,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		s.Trait = domain.Trait(trait)
		scores = append(scores, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return scores, nil
}
