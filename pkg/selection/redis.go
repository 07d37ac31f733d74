package selection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var storeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "artic_selection_store_errors_total",
	Help: "Selection store errors by operation",
}, []string{"operation"})

// toggleRetries bounds optimistic-lock retries when Toggle races another writer.
const toggleRetries = 5

// RedisStore keeps one session's selection in a Redis list.
type RedisStore struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL expires the selection d after its last change.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// NewRedisStore returns a store for session. It panics on a nil client.
func NewRedisStore(client *redis.Client, session string, opts ...RedisOption) *RedisStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if session == "" {
		session = "default"
	}

	s := &RedisStore{
		redis: client,
		key:   "artic:selection:" + session,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the Redis key holding the selection.
func (s *RedisStore) Key() string {
	return s.key
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context) ([]int, error) {
	vals, err := s.redis.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		storeErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	return parseIDs(vals)
}

// Set implements Store. The list is replaced in one MULTI/EXEC so readers
// never see a partial selection.
func (s *RedisStore) Set(ctx context.Context, ids []int) error {
	ids = dedupe(ids)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.replace(ctx, pipe, ids)
		return nil
	})
	if err != nil {
		storeErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis replace selection: %w", err)
	}
	return nil
}

// Toggle implements Store.
func (s *RedisStore) Toggle(ctx context.Context, id int) error {
	txf := func(tx *redis.Tx) error {
		vals, err := tx.LRange(ctx, s.key, 0, -1).Result()
		if err != nil {
			return err
		}
		ids, err := parseIDs(vals)
		if err != nil {
			return err
		}

		if i := slices.Index(ids, id); i >= 0 {
			ids = slices.Delete(ids, i, i+1)
		} else {
			ids = append(ids, id)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.replace(ctx, pipe, ids)
			return nil
		})
		return err
	}

	for i := 0; i < toggleRetries; i++ {
		err := s.redis.Watch(ctx, txf, s.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			storeErrors.WithLabelValues("toggle").Inc()
			return fmt.Errorf("redis toggle %d: %w", id, err)
		}
		return nil
	}

	storeErrors.WithLabelValues("toggle").Inc()
	return fmt.Errorf("redis toggle %d: %w", id, redis.TxFailedErr)
}

// Contains implements Store.
func (s *RedisStore) Contains(ctx context.Context, id int) (bool, error) {
	ids, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, id), nil
}

// replace queues the commands that overwrite the list with ids.
func (s *RedisStore) replace(ctx context.Context, pipe redis.Pipeliner, ids []int) {
	pipe.Del(ctx, s.key)
	if len(ids) == 0 {
		return
	}

	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = strconv.Itoa(id)
	}
	pipe.RPush(ctx, s.key, vals...)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
}

func parseIDs(vals []string) ([]int, error) {
	ids := make([]int, 0, len(vals))
	for _, v := range vals {
		id, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid identifier %q in selection: %w", v, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
