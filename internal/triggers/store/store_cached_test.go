package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"autoflow/internal/triggers/metrics"
	"autoflow/internal/triggers/models"
)

type countingBacking struct {
	*InMemoryStore
	finds int
}

func (c *countingBacking) FindMatching(ctx context.Context, eventType string, tenantID uuid.UUID, order models.MatchOrder) ([]*models.Trigger, error) {
	c.finds++
	return c.InMemoryStore.FindMatching(ctx, eventType, tenantID, order)
}

type CachedStoreSuite struct {
	suite.Suite
	redis   *miniredis.Miniredis
	client  *redis.Client
	backing *countingBacking
	metrics *metrics.Metrics
	store   *CachedStore
	tenant  uuid.UUID
}

func TestCachedStoreSuite(t *testing.T) {
	suite.Run(t, new(CachedStoreSuite))
}

func (s *CachedStoreSuite) SetupTest() {
	m, err := miniredis.Run()
	s.Require().NoError(err)
	s.redis = m
	s.client = redis.NewClient(&redis.Options{Addr: m.Addr()})
	s.backing = &countingBacking{InMemoryStore: NewInMemory()}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.store = NewCached(s.backing, s.client, time.Minute, WithCacheMetrics(s.metrics))
	s.tenant = uuid.New()
}

func (s *CachedStoreSuite) TearDownTest() {
	_ = s.client.Close()
	s.redis.Close()
}

func (s *CachedStoreSuite) create(name, event string) *models.Trigger {
	conditions, err := models.NewConditions(map[string]any{"source": "web"})
	s.Require().NoError(err)
	t := &models.Trigger{
		ID:         uuid.New(),
		TenantID:   &s.tenant,
		Name:       name,
		Event:      event,
		Conditions: conditions,
		Actions:    json.RawMessage(`[{"type":"notification","config":{"title":"hi"}}]`),
		Active:     true,
	}
	s.Require().NoError(s.store.Create(context.Background(), t))
	return t
}

func (s *CachedStoreSuite) TestReadThrough() {
	ctx := context.Background()
	created := s.create("welcome", "lead.created")

	first, err := s.store.FindMatching(ctx, "lead.created", s.tenant, models.MatchOrderCreated)
	s.Require().NoError(err)
	second, err := s.store.FindMatching(ctx, "lead.created", s.tenant, models.MatchOrderCreated)
	s.Require().NoError(err)

	s.Equal(1, s.backing.finds)
	s.Require().Len(second, 1)
	s.Equal(created.ID, second[0].ID)
	s.JSONEq(string(first[0].Conditions), string(second[0].Conditions))
	s.JSONEq(string(first[0].Actions), string(second[0].Actions))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("hit")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("miss")))

	s.True(s.redis.Exists(matchKey("lead.created", s.tenant, models.MatchOrderCreated)))
}

func (s *CachedStoreSuite) TestEntriesExpire() {
	ctx := context.Background()
	s.create("welcome", "lead.created")

	_, err := s.store.FindMatching(ctx, "lead.created", s.tenant, models.MatchOrderCreated)
	s.Require().NoError(err)
	s.redis.FastForward(2 * time.Minute)
	_, err = s.store.FindMatching(ctx, "lead.created", s.tenant, models.MatchOrderCreated)
	s.Require().NoError(err)

	s.Equal(2, s.backing.finds)
}

func (s *CachedStoreSuite) TestCreateInvalidatesEvent() {
	ctx := context.Background()
	s.create("first", "lead.created")
	s.create("other", "order.created")

	_, err := s.store.FindMatching(ctx, "lead.created", s.tenant, models.MatchOrderCreated)
	s.Require().NoError(err)
	_, err = s.store.FindMatching(ctx, "order.created", s.tenant, models.MatchOrderCreated)
	s.Require().NoError(err)

	s.create("second", "lead.created")

	s.False(s.redis.Exists(matchKey("lead.created", s.tenant, models.MatchOrderCreated)))
	s.True(s.redis.Exists(matchKey("order.created", s.tenant, models.MatchOrderCreated)))

	matched, err := s.store.FindMatching(ctx, "lead.created", s.tenant, models.MatchOrderCreated)
	s.Require().NoError(err)
	s.Len(matched, 2)
}

func (s *CachedStoreSuite) TestFallsBackWhenRedisIsDown() {
	ctx := context.Background()
	s.create("welcome", "lead.created")
	s.redis.Close()

	matched, err := s.store.FindMatching(ctx, "lead.created", s.tenant, models.MatchOrderCreated)
	s.Require().NoError(err)
	s.Len(matched, 1)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("error")))
}

func (s *CachedStoreSuite) TestCorruptEntryIsIgnored() {
	ctx := context.Background()
	s.create("welcome", "lead.created")
	s.Require().NoError(s.redis.Set(matchKey("lead.created", s.tenant, models.MatchOrderCreated), "not json"))

	matched, err := s.store.FindMatching(ctx, "lead.created", s.tenant, models.MatchOrderCreated)
	s.Require().NoError(err)
	s.Len(matched, 1)
	s.Equal(1, s.backing.finds)
}
