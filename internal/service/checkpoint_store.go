package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trait-consensus/internal/domain"
)

// CheckpointStore guarda veredictos por segmento y el reporte final de cada corrida.
type CheckpointStore interface {
	SaveVerdict(ctx context.Context, runID string, v domain.SegmentVerdict) error
	LoadVerdicts(ctx context.Context, runID string) (map[string]domain.SegmentVerdict, error)
	SaveReport(ctx context.Context, report domain.ConsensusReport) error
	LoadReport(ctx context.Context, runID string) (domain.ConsensusReport, error)
}

type memoryCheckpointStore struct {
	mu       sync.Mutex
	verdicts map[string]map[string][]byte
	reports  map[string][]byte
}

// NewMemoryCheckpointStore keeps checkpoints in process; values are stored
// serialized so callers never share maps with the store.
func NewMemoryCheckpointStore() CheckpointStore {
	return &memoryCheckpointStore{
		verdicts: make(map[string]map[string][]byte),
		reports:  make(map[string][]byte),
	}
}

func (s *memoryCheckpointStore) SaveVerdict(_ context.Context, runID string, v domain.SegmentVerdict) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict %s: %w", v.SegmentID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.verdicts[runID]
	if !ok {
		run = make(map[string][]byte)
		s.verdicts[runID] = run
	}
	run[v.SegmentID] = data
	return nil
}

func (s *memoryCheckpointStore) LoadVerdicts(_ context.Context, runID string) (map[string]domain.SegmentVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.SegmentVerdict, len(s.verdicts[runID]))
	for id, data := range s.verdicts[runID] {
		var v domain.SegmentVerdict
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("unmarshal verdict %s: %w", id, err)
		}
		out[id] = v
	}
	return out, nil
}

func (s *memoryCheckpointStore) SaveReport(_ context.Context, report domain.ConsensusReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report %s: %w", report.RunID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.RunID] = data
	return nil
}

func (s *memoryCheckpointStore) LoadReport(_ context.Context, runID string) (domain.ConsensusReport, error) {
	s.mu.Lock()
	data, ok := s.reports[runID]
	s.mu.Unlock()
	if !ok {
		return domain.ConsensusReport{}, domain.ErrReportNotFound
	}
	var report domain.ConsensusReport
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.ConsensusReport{}, fmt.Errorf("unmarshal report %s: %w", runID, err)
	}
	return report, nil
}

type redisCheckpointClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

type redisCheckpointStore struct {
	client  redisCheckpointClient
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisCheckpointStore uses one hash per run for verdicts (field = segment id)
// and a plain key for the report. Both expire after ttl.
func NewRedisCheckpointStore(client *redis.Client, ttl time.Duration) CheckpointStore {
	if client == nil {
		return nil
	}
	return newRedisCheckpointStore(client, ttl)
}

func newRedisCheckpointStore(client redisCheckpointClient, ttl time.Duration) *redisCheckpointStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &redisCheckpointStore{
		client:  client,
		prefix:  "consensus:run:",
		ttl:     ttl,
		timeout: 500 * time.Millisecond,
	}
}

func (s *redisCheckpointStore) verdictsKey(runID string) string {
	return s.prefix + runID + ":verdicts"
}

func (s *redisCheckpointStore) reportKey(runID string) string {
	return s.prefix + runID + ":report"
}

func (s *redisCheckpointStore) SaveVerdict(ctx context.Context, runID string, v domain.SegmentVerdict) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("checkpoint: empty run id")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict %s: %w", v.SegmentID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := s.verdictsKey(runID)
	if err := s.client.HSet(ctx, key, v.SegmentID, string(data)).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return s.client.Expire(ctx, key, s.ttl).Err()
}

func (s *redisCheckpointStore) LoadVerdicts(ctx context.Context, runID string) (map[string]domain.SegmentVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, s.verdictsKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.verdictsKey(runID), err)
	}
	out := make(map[string]domain.SegmentVerdict, len(fields))
	for id, raw := range fields {
		var v domain.SegmentVerdict
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("unmarshal verdict %s: %w", id, err)
		}
		out[id] = v
	}
	return out, nil
}

func (s *redisCheckpointStore) SaveReport(ctx context.Context, report domain.ConsensusReport) error {
	if strings.TrimSpace(report.RunID) == "" {
		return errors.New("checkpoint: empty run id")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report %s: %w", report.RunID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Set(ctx, s.reportKey(report.RunID), string(data), s.ttl).Err()
}

func (s *redisCheckpointStore) LoadReport(ctx context.Context, runID string) (domain.ConsensusReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.reportKey(runID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.ConsensusReport{}, domain.ErrReportNotFound
	}
	if err != nil {
		return domain.ConsensusReport{}, fmt.Errorf("get %s: %w", s.reportKey(runID), err)
	}
	var report domain.ConsensusReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return domain.ConsensusReport{}, fmt.Errorf("unmarshal report %s: %w", runID, err)
	}
	return report, nil
}
