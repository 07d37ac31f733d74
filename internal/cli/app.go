package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/artic-client/internal/config"
	"github.com/Sternrassler/artic-client/internal/viewer"
	"github.com/Sternrassler/artic-client/pkg/cache"
	"github.com/Sternrassler/artic-client/pkg/client"
	"github.com/Sternrassler/artic-client/pkg/pagination"
	"github.com/Sternrassler/artic-client/pkg/selection"
)

// app wires the packages together from a configuration.
type app struct {
	client   *client.Client
	selector *pagination.Selector
	store    selection.Store
	session  *viewer.Session
	redis    *redis.Client
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}

	clientCfg := client.Config{
		BaseURL:   cfg.API.BaseURL,
		UserAgent: cfg.API.UserAgent,
		PageSize:  cfg.API.PageSize,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		RateBurst: cfg.API.RateBurst,
		Retry: client.RetryConfig{
			MaxAttempts:       cfg.API.Retry.MaxAttempts,
			InitialBackoff:    cfg.API.Retry.InitialBackoff,
			MaxBackoff:        cfg.API.Retry.MaxBackoff,
			BackoffMultiplier: 2,
		},
	}

	if cfg.Redis.Enabled() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}

		clientCfg.Cache = cache.NewManager(a.redis, cache.WithStaleRetention(cfg.Redis.StaleRetention))
		a.store = selection.NewRedisStore(a.redis, cfg.Redis.Session, selection.WithTTL(cfg.Redis.SelectionTTL))
	} else {
		a.store = selection.NewMemoryStore()
	}

	c, err := client.New(clientCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = c

	a.selector = pagination.NewSelector(c, pagination.Config{
		PageTimeout: cfg.Selection.PageTimeout,
		MaxAttempts: cfg.Selection.MaxAttempts,
		Backoff:     cfg.Selection.Backoff,
	})
	a.session = viewer.NewSession(c, a.selector, a.store)

	return a, nil
}

// Close releases the Redis connection, if any.
func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
