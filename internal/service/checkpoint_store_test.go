package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"trait-consensus/internal/domain"
)

type mockRedisCheckpointClient struct {
	hashes    map[string]map[string]string
	kv        map[string]string
	lastTTL   time.Duration
	expireKey string

	hsetErr error
	getErr  error
}

func newMockRedisCheckpointClient() *mockRedisCheckpointClient {
	return &mockRedisCheckpointClient{
		hashes: make(map[string]map[string]string),
		kv:     make(map[string]string),
	}
}

func (m *mockRedisCheckpointClient) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if m.hsetErr != nil {
		cmd.SetErr(m.hsetErr)
		return cmd
	}
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1].(string)
	}
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func (m *mockRedisCheckpointClient) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(ctx)
	out := make(map[string]string)
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	cmd.SetVal(out)
	return cmd
}

func (m *mockRedisCheckpointClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireKey = key
	m.lastTTL = expiration
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func (m *mockRedisCheckpointClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.kv[key] = value.(string)
	m.lastTTL = expiration
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (m *mockRedisCheckpointClient) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if m.getErr != nil {
		cmd.SetErr(m.getErr)
		return cmd
	}
	v, ok := m.kv[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func sampleVerdict(id string, index int) domain.SegmentVerdict {
	return domain.SegmentVerdict{
		SegmentID: id,
		Index:     index,
		ItemIDs:   []string{"q01"},
		Scores: []domain.NormalizedScoreSet{
			{EvaluatorID: "m1", Scores: map[domain.Trait]int{domain.TraitOpenness: 5}},
		},
		Traits: map[domain.Trait]domain.TraitVerdict{
			domain.TraitOpenness: {Trait: domain.TraitOpenness, Status: domain.StatusPartial},
		},
		Used: []string{"m1"},
	}
}

func TestMemoryCheckpointStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCheckpointStore()

	got, err := store.LoadVerdicts(ctx, "run-1")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty verdicts, got %v,%v", got, err)
	}

	v := sampleVerdict("seg-000", 0)
	if err := store.SaveVerdict(ctx, "run-1", v); err != nil {
		t.Fatalf("save verdict: %v", err)
	}
	// mutating the caller copy must not leak into the store
	v.Scores[0].Scores[domain.TraitOpenness] = 1

	got, err = store.LoadVerdicts(ctx, "run-1")
	if err != nil {
		t.Fatalf("load verdicts: %v", err)
	}
	if got["seg-000"].Scores[0].Scores[domain.TraitOpenness] != 5 {
		t.Fatalf("stored verdict was aliased: %+v", got["seg-000"])
	}

	if _, err := store.LoadReport(ctx, "run-1"); !errors.Is(err, domain.ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
	if err := store.SaveReport(ctx, domain.ConsensusReport{RunID: "run-1", MBTICode: "INTJ"}); err != nil {
		t.Fatalf("save report: %v", err)
	}
	report, err := store.LoadReport(ctx, "run-1")
	if err != nil || report.MBTICode != "INTJ" {
		t.Fatalf("unexpected report %+v, %v", report, err)
	}
}

func TestRedisCheckpointStore_Verdicts(t *testing.T) {
	ctx := context.Background()
	client := newMockRedisCheckpointClient()
	store := newRedisCheckpointStore(client, time.Hour)

	if err := store.SaveVerdict(ctx, "run-9", sampleVerdict("seg-001", 1)); err != nil {
		t.Fatalf("save verdict: %v", err)
	}
	if client.expireKey != "consensus:run:run-9:verdicts" || client.lastTTL != time.Hour {
		t.Fatalf("unexpected expire %s %v", client.expireKey, client.lastTTL)
	}

	got, err := store.LoadVerdicts(ctx, "run-9")
	if err != nil {
		t.Fatalf("load verdicts: %v", err)
	}
	v, ok := got["seg-001"]
	if !ok || v.Index != 1 || !v.HasUsed("m1") {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestRedisCheckpointStore_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty run id", func(t *testing.T) {
		store := newRedisCheckpointStore(newMockRedisCheckpointClient(), 0)
		if err := store.SaveVerdict(ctx, " ", sampleVerdict("seg-000", 0)); err == nil {
			t.Fatalf("expected error for empty run id")
		}
		if store.ttl != 7*24*time.Hour {
			t.Fatalf("expected default ttl, got %v", store.ttl)
		}
	})

	t.Run("hset failure", func(t *testing.T) {
		client := newMockRedisCheckpointClient()
		client.hsetErr = errors.New("redis down")
		store := newRedisCheckpointStore(client, time.Hour)
		if err := store.SaveVerdict(ctx, "run-1", sampleVerdict("seg-000", 0)); err == nil {
			t.Fatalf("expected hset error")
		}
	})

	t.Run("missing report", func(t *testing.T) {
		store := newRedisCheckpointStore(newMockRedisCheckpointClient(), time.Hour)
		if _, err := store.LoadReport(ctx, "nope"); !errors.Is(err, domain.ErrReportNotFound) {
			t.Fatalf("expected ErrReportNotFound, got %v", err)
		}
	})

	t.Run("report round trip", func(t *testing.T) {
		client := newMockRedisCheckpointClient()
		store := newRedisCheckpointStore(client, time.Hour)
		if err := store.SaveReport(ctx, domain.ConsensusReport{RunID: "run-2", OverallConfidence: 0.75}); err != nil {
			t.Fatalf("save report: %v", err)
		}
		if _, ok := client.kv["consensus:run:run-2:report"]; !ok {
			t.Fatalf("report stored under unexpected key: %v", client.kv)
		}
		r, err := store.LoadReport(ctx, "run-2")
		if err != nil || r.OverallConfidence != 0.75 {
			t.Fatalf("unexpected report %+v, %v", r, err)
		}
	})
}
