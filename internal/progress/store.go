package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/certforge/backend/internal/models"
)

var ErrNotFound = errors.New("job not found")

// Store is the durable home of progress records. Mutate must run fn
// atomically with respect to other Mutate calls for the same job.
type Store interface {
	Get(ctx context.Context, jobID string) (*models.ProgressState, error)
	Put(ctx context.Context, s *models.ProgressState) error
	Mutate(ctx context.Context, jobID string, fn func(*models.ProgressState) error) (*models.ProgressState, error)
}

// MemoryStore keeps JSON-encoded records so callers never share memory
// with the stored state.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, jobID string) (*models.ProgressState, error) {
	m.mu.Lock()
	raw, ok := m.records[jobID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeState(raw)
}

func (m *MemoryStore) Put(_ context.Context, s *models.ProgressState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[s.JobID] = raw
	return nil
}

func (m *MemoryStore) Mutate(_ context.Context, jobID string, fn func(*models.ProgressState) error) (*models.ProgressState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.records[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	s, err := decodeState(raw)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	out, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode progress: %w", err)
	}
	m.records[jobID] = out
	return s, nil
}

const redisMutateAttempts = 50

// RedisStore keeps one JSON record per job under "progress:{jobID}" and
// serializes Mutate across processes with WATCH/MULTI.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func progressKey(jobID string) string {
	return "progress:" + jobID
}

func (r *RedisStore) Get(ctx context.Context, jobID string) (*models.ProgressState, error) {
	raw, err := r.rdb.Get(ctx, progressKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get progress: %w", err)
	}
	return decodeState(raw)
}

func (r *RedisStore) Put(ctx context.Context, s *models.ProgressState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := r.rdb.Set(ctx, progressKey(s.JobID), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set progress: %w", err)
	}
	return nil
}

func (r *RedisStore) Mutate(ctx context.Context, jobID string, fn func(*models.ProgressState) error) (*models.ProgressState, error) {
	key := progressKey(jobID)
	var result *models.ProgressState

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		s, err := decodeState(raw)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		out, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode progress: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			result = s
		}
		return err
	}

	for i := 0; i < redisMutateAttempts; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("progress %s: too much contention", jobID)
}

func decodeState(raw []byte) (*models.ProgressState, error) {
	var s models.ProgressState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &s, nil
}
