package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/djbooking/funnel/internal/domain"
	"github.com/djbooking/funnel/internal/repository"
)

const (
	keyPrefix        = "booking:progress:"
	versionKeyPrefix = "booking:progress-version:"

	// minVersionTTL keeps a flow's write counter alive well past any
	// in-flight backend read.
	minVersionTTL = 10 * time.Minute
)

// CachedProgressRepository is a cache-aside decorator that keeps ListByFlow
// results in Redis. Every write bumps a per-flow version and drops the cached
// list. A list read from the backend is only cached if the version is still
// the one seen before the read, so a read that raced a write never caches its
// stale result. Redis failures are logged and never fail a call.
type CachedProgressRepository struct {
	next   repository.ProgressRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedProgressRepository wraps next with a Redis read cache.
func NewCachedProgressRepository(next repository.ProgressRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedProgressRepository {
	return &CachedProgressRepository{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// CacheKey returns the Redis key holding a flow's progress list.
func CacheKey(flowID string) string {
	return keyPrefix + flowID
}

// VersionKey returns the Redis key counting writes to a flow.
func VersionKey(flowID string) string {
	return versionKeyPrefix + flowID
}

var errVersionChanged = errors.New("progress changed during read")

func (r *CachedProgressRepository) versionTTL() time.Duration {
	if ttl := 2 * r.ttl; ttl > minVersionTTL {
		return ttl
	}
	return minVersionTTL
}

// Upsert implements repository.ProgressRepository.
func (r *CachedProgressRepository) Upsert(ctx context.Context, p domain.StepProgress) (*domain.StepProgress, error) {
	rec, err := r.next.Upsert(ctx, p)
	if err != nil {
		return nil, err
	}

	verKey := VersionKey(p.FlowID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, verKey)
		pipe.Expire(ctx, verKey, r.versionTTL())
		pipe.Del(ctx, CacheKey(p.FlowID))
		return nil
	})
	if err != nil {
		r.logger.WarnContext(ctx, "failed to invalidate progress cache",
			slog.String("flow_id", p.FlowID),
			slog.String("error", err.Error()),
		)
	}

	return rec, nil
}

// ListByFlow implements repository.ProgressRepository.
func (r *CachedProgressRepository) ListByFlow(ctx context.Context, flowID string) ([]domain.StepProgress, error) {
	key := CacheKey(flowID)

	cached, err := r.get(ctx, key)
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, redis.Nil):
		r.logger.WarnContext(ctx, "progress cache read failed",
			slog.String("flow_id", flowID),
			slog.String("error", err.Error()),
		)
	}

	version, verErr := r.version(ctx, flowID)

	progress, err := r.next.ListByFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if verErr != nil {
		return progress, nil
	}

	err = r.setIfUnchanged(ctx, flowID, version, progress)
	switch {
	case err == nil:
	case errors.Is(err, errVersionChanged), errors.Is(err, redis.TxFailedErr):
		r.logger.DebugContext(ctx, "progress changed while reading, not cached",
			slog.String("flow_id", flowID),
		)
	default:
		r.logger.WarnContext(ctx, "progress cache write failed",
			slog.String("flow_id", flowID),
			slog.String("error", err.Error()),
		)
	}

	return progress, nil
}

// Durable reports the durability of the wrapped repository.
func (r *CachedProgressRepository) Durable() bool { return r.next.Durable() }

// Backend implements repository.ProgressRepository.
func (r *CachedProgressRepository) Backend() string { return r.next.Backend() }

// Ping checks the Redis connection for health reporting.
func (r *CachedProgressRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *CachedProgressRepository) get(ctx context.Context, key string) ([]domain.StepProgress, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var progress []domain.StepProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("unmarshal cached progress: %w", err)
	}
	if progress == nil {
		progress = []domain.StepProgress{}
	}
	return progress, nil
}

// version returns the flow's write counter, "" when the flow has no recent
// writes.
func (r *CachedProgressRepository) version(ctx context.Context, flowID string) (string, error) {
	v, err := r.client.Get(ctx, VersionKey(flowID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get progress version: %w", err)
	}
	return v, nil
}

// setIfUnchanged caches progress only while the flow's version still equals
// version. WATCH makes a write landing between the check and the SET abort
// the transaction.
func (r *CachedProgressRepository) setIfUnchanged(ctx context.Context, flowID, version string, progress []domain.StepProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	verKey := VersionKey(flowID)
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, verKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis get progress version: %w", err)
		}
		if current != version {
			return errVersionChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, CacheKey(flowID), data, r.ttl)
			return nil
		})
		return err
	}, verKey)
}
