package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"autoflow/internal/triggers/metrics"
	"autoflow/internal/triggers/models"
)

const matchKeyPrefix = "autoflow:triggers:"

// Backing is the store the cache reads through to.
type Backing interface {
	Create(ctx context.Context, t *models.Trigger) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Trigger, error)
	FindMatching(ctx context.Context, eventType string, tenantID uuid.UUID, order models.MatchOrder) ([]*models.Trigger, error)
	RecordExecution(ctx context.Context, id uuid.UUID, at time.Time, duration time.Duration) error
}

// CachedStore caches FindMatching results in Redis. Every event hits the matching
// query, while trigger definitions change rarely. Redis failures fall back to the
// backing store.
type CachedStore struct {
	backing Backing
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// CachedOption configures a CachedStore.
type CachedOption func(*CachedStore)

func WithCacheLogger(logger *slog.Logger) CachedOption {
	return func(s *CachedStore) {
		s.logger = logger
	}
}

func WithCacheMetrics(m *metrics.Metrics) CachedOption {
	return func(s *CachedStore) {
		s.metrics = m
	}
}

// NewCached wraps backing with a Redis read-through cache.
func NewCached(backing Backing, client *redis.Client, ttl time.Duration, opts ...CachedOption) *CachedStore {
	s := &CachedStore{
		backing: backing,
		client:  client,
		ttl:     ttl,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func matchKey(eventType string, tenantID uuid.UUID, order models.MatchOrder) string {
	return fmt.Sprintf("%s%s:%s:%s", matchKeyPrefix, tenantID, eventType, order)
}

func (s *CachedStore) FindMatching(ctx context.Context, eventType string, tenantID uuid.UUID, order models.MatchOrder) ([]*models.Trigger, error) {
	key := matchKey(eventType, tenantID, order)

	raw, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var triggers []*models.Trigger
		if jsonErr := json.Unmarshal(raw, &triggers); jsonErr == nil {
			s.metrics.IncCacheLookup("hit")
			return triggers, nil
		}
		s.logger.WarnContext(ctx, "discarding undecodable trigger cache entry", "key", key)
		s.metrics.IncCacheLookup("error")
	case errors.Is(err, redis.Nil):
		s.metrics.IncCacheLookup("miss")
	default:
		s.logger.WarnContext(ctx, "trigger cache read failed", "key", key, "error", err)
		s.metrics.IncCacheLookup("error")
	}

	triggers, err := s.backing.FindMatching(ctx, eventType, tenantID, order)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(triggers)
	if err != nil {
		return triggers, nil
	}
	if err := s.client.Set(ctx, key, encoded, s.ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "trigger cache write failed", "key", key, "error", err)
	}
	return triggers, nil
}

// RecordExecution goes straight to the backing store. Cached entries carry stale
// statistics until they expire; matching never reads them.
func (s *CachedStore) RecordExecution(ctx context.Context, id uuid.UUID, at time.Time, duration time.Duration) error {
	return s.backing.RecordExecution(ctx, id, at, duration)
}

func (s *CachedStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Trigger, error) {
	return s.backing.FindByID(ctx, id)
}

// Create writes through and drops cached match sets for the trigger's event.
func (s *CachedStore) Create(ctx context.Context, t *models.Trigger) error {
	if err := s.backing.Create(ctx, t); err != nil {
		return err
	}
	if err := s.InvalidateEvent(ctx, t.Event); err != nil {
		s.logger.WarnContext(ctx, "trigger cache invalidation failed", "event", t.Event, "error", err)
	}
	return nil
}

// InvalidateEvent deletes every cached match set for eventType across tenants.
func (s *CachedStore) InvalidateEvent(ctx context.Context, eventType string) error {
	pattern := fmt.Sprintf("%s*:%s:*", matchKeyPrefix, eventType)
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan trigger cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete trigger cache keys: %w", err)
	}
	return nil
}
