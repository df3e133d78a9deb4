package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/intelli-123/observability-copilot/internal/domain"
)

const (
	settingsKey = "app_tool_configurations"
	cachePrefix = "cache:"

	opTimeout = 2 * time.Second
	scanBatch = 100
)

// Redis backs both the settings document and the log cache with a single
// Redis connection. Readiness is verified once on first use so construction
// stays cheap and concurrent first requests do not race duplicate pings.
type Redis struct {
	client *redis.Client
	logger *slog.Logger

	readyOnce sync.Once
	readyErr  error
}

// NewRedis constructs the store. No connection is made until first use.
func NewRedis(addr, password string, db int, logger *slog.Logger) *Redis {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &Redis{client: client, logger: logger}
}

func (r *Redis) ready(ctx context.Context) error {
	r.readyOnce.Do(func() {
		pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		if err := r.client.Ping(pingCtx).Err(); err != nil {
			r.logger.Error("redis unreachable", "error", err)
			r.readyErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			return
		}
		r.logger.Info("established connection to redis")
	})
	return r.readyErr
}

// Load implements SettingsStore.
func (r *Redis) Load(ctx context.Context) (domain.Settings, error) {
	if err := r.ready(ctx); err != nil {
		return domain.Settings{}, err
	}
	raw, err := r.client.Get(ctx, settingsKey).Result()
	if err == redis.Nil {
		return domain.Settings{Configs: domain.Configs{}}, nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("%w: get settings: %v", ErrUnavailable, err)
	}
	var settings domain.Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("decode settings document: %w", err)
	}
	if settings.Configs == nil {
		settings.Configs = domain.Configs{}
	}
	return settings, nil
}

// Save implements SettingsStore. The write is whole-document and is followed
// by a full cache invalidation so no vendor serves logs fetched under the old
// configuration.
func (r *Redis) Save(ctx context.Context, settings domain.Settings) error {
	if err := r.ready(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings document: %w", err)
	}
	if err := r.client.Set(ctx, settingsKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("%w: set settings: %v", ErrUnavailable, err)
	}
	if err := r.InvalidateAll(ctx); err != nil {
		return err
	}
	r.logger.Info("settings saved, log cache invalidated")
	return nil
}

// Get implements LogCache.
func (r *Redis) Get(ctx context.Context, vendor string) ([]byte, bool, error) {
	if err := r.ready(ctx); err != nil {
		return nil, false, err
	}
	raw, err := r.client.Get(ctx, cacheKey(vendor)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get cache: %v", ErrUnavailable, err)
	}
	return raw, true, nil
}

// Set implements LogCache. Expiry is native Redis TTL.
func (r *Redis) Set(ctx context.Context, vendor string, payload []byte, ttl time.Duration) error {
	if err := r.ready(ctx); err != nil {
		return err
	}
	if err := r.client.Set(ctx, cacheKey(vendor), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set cache: %v", ErrUnavailable, err)
	}
	return nil
}

// InvalidateAll implements LogCache via a prefix scan over the cache namespace.
func (r *Redis) InvalidateAll(ctx context.Context) error {
	if err := r.ready(ctx); err != nil {
		return err
	}
	iter := r.client.Scan(ctx, 0, cachePrefix+"*", scanBatch).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: scan cache keys: %v", ErrUnavailable, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: delete cache keys: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping verifies connectivity, used by the health endpoint.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func cacheKey(vendor string) string {
	return cachePrefix + vendor + "-logs"
}
