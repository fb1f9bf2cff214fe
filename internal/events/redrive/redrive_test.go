package redrive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoflow/internal/events/models"
	"autoflow/internal/events/store"
)

type recordingRepublisher struct {
	sent   []uuid.UUID
	failAt int
}

func (r *recordingRepublisher) Republish(_ context.Context, event *models.DomainEvent) error {
	if r.failAt > 0 && len(r.sent)+1 == r.failAt {
		return errors.New("bus unavailable")
	}
	r.sent = append(r.sent, event.ID)
	return nil
}

func seed(t *testing.T, s *store.InMemoryStore, at time.Time) *models.DomainEvent {
	t.Helper()
	e := &models.DomainEvent{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		EventType:   models.EventLeadCreated,
		EntityType:  models.EntityLead,
		EntityID:    uuid.New(),
		Payload:     map[string]any{},
		TriggeredAt: at,
	}
	require.NoError(t, s.Insert(context.Background(), e))
	return e
}

func TestSweepAt(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	t.Run("only stale unprocessed events are re-published", func(t *testing.T) {
		events := store.NewInMemory()
		stale := seed(t, events, now.Add(-10*time.Minute))
		seed(t, events, now.Add(-time.Minute))
		done := seed(t, events, now.Add(-20*time.Minute))
		_, err := events.MarkProcessed(ctx, done.TenantID, done.EventType, done.EntityID, now)
		require.NoError(t, err)

		rep := &recordingRepublisher{}
		sweeper := New(events, rep, time.Minute, 5*time.Minute, 10)

		n, err := sweeper.SweepAt(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []uuid.UUID{stale.ID}, rep.sent)
	})

	t.Run("batch size caps one sweep", func(t *testing.T) {
		events := store.NewInMemory()
		for i := 0; i < 5; i++ {
			seed(t, events, now.Add(-time.Hour+time.Duration(i)*time.Second))
		}
		rep := &recordingRepublisher{}
		sweeper := New(events, rep, time.Minute, time.Minute, 3)

		n, err := sweeper.SweepAt(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("broadcast failure stops the sweep", func(t *testing.T) {
		events := store.NewInMemory()
		for i := 0; i < 3; i++ {
			seed(t, events, now.Add(-time.Hour))
		}
		rep := &recordingRepublisher{failAt: 2}
		sweeper := New(events, rep, time.Minute, time.Minute, 10)

		n, err := sweeper.SweepAt(ctx, now)
		require.Error(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sweeper := New(store.NewInMemory(), &recordingRepublisher{}, time.Millisecond, time.Minute, 10)

	errCh := make(chan error, 1)
	go func() { errCh <- sweeper.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
