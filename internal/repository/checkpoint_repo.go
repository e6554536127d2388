package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trait-consensus/internal/domain"
)

// PgCheckpointRepository persiste veredictos y reportes como jsonb.
// Implementa service.CheckpointStore.
type PgCheckpointRepository struct {
	pool *pgxpool.Pool
}

func NewPgCheckpointRepository(pool *pgxpool.Pool) *PgCheckpointRepository {
	return &PgCheckpointRepository{pool: pool}
}

func (r *PgCheckpointRepository) SaveVerdict(ctx context.Context, runID string, v domain.SegmentVerdict) error {
	const query = `
		INSERT INTO segment_verdicts (run_id, segment_id, segment_index, terminal, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, segment_id)
		DO UPDATE SET
			terminal = EXCLUDED.terminal,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict %s: %w", v.SegmentID, err)
	}
	_, err = r.pool.Exec(ctx, query, runID, v.SegmentID, v.Index, v.Terminal, payload, v.UpdatedAt)
	return err
}

func (r *PgCheckpointRepository) LoadVerdicts(ctx context.Context, runID string) (map[string]domain.SegmentVerdict, error) {
	const query = `
		SELECT segment_id, payload
		FROM segment_verdicts
		WHERE run_id = $1
		ORDER BY segment_index
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.SegmentVerdict)
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var v domain.SegmentVerdict
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("unmarshal verdict %s: %w", id, err)
		}
		out[id] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PgCheckpointRepository) SaveReport(ctx context.Context, report domain.ConsensusReport) error {
	const query = `
		INSERT INTO consensus_reports (run_id, subject_id, mbti_code, overall_confidence, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id)
		DO UPDATE SET
			mbti_code = EXCLUDED.mbti_code,
			overall_confidence = EXCLUDED.overall_confidence,
			payload = EXCLUDED.payload
	`
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report %s: %w", report.RunID, err)
	}
	_, err = r.pool.Exec(ctx, query,
		report.RunID,
		report.SubjectID,
		report.MBTICode,
		report.OverallConfidence,
		payload,
		report.CreatedAt,
	)
	return err
}

func (r *PgCheckpointRepository) LoadReport(ctx context.Context, runID string) (domain.ConsensusReport, error) {
	const query = `SELECT payload FROM consensus_reports WHERE run_id = $1`
	var payload []byte
	err := r.pool.QueryRow(ctx, query, runID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ConsensusReport{}, domain.ErrReportNotFound
	}
	if err != nil {
		return domain.ConsensusReport{}, err
	}
	var report domain.ConsensusReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return domain.ConsensusReport{}, fmt.Errorf("unmarshal report %s: %w", runID, err)
	}
	return report, nil
}
