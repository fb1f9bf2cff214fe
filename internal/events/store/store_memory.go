package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"autoflow/internal/events/models"
	"autoflow/pkg/platform/sentinel"
)

// InMemoryStore is a thread-safe event store for tests and local runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*models.DomainEvent
	order  []uuid.UUID
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{events: make(map[uuid.UUID]*models.DomainEvent)}
}

func (s *InMemoryStore) Insert(_ context.Context, event *models.DomainEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[event.ID]; exists {
		return fmt.Errorf("insert event %s: %w", event.ID, sentinel.ErrConflict)
	}
	stored := *event
	s.events[event.ID] = &stored
	s.order = append(s.order, event.ID)
	return nil
}

func (s *InMemoryStore) MarkProcessed(_ context.Context, tenantID uuid.UUID, eventType string, entityID uuid.UUID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.events {
		if e.Processed || e.TenantID != tenantID || e.EventType != eventType || e.EntityID != entityID {
			continue
		}
		e.Processed = true
		processedAt := at
		e.ProcessedAt = &processedAt
		n++
	}
	return n, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, sentinel.ErrNotFound)
	}
	out := *e
	return &out, nil
}

func (s *InMemoryStore) ListUnprocessed(_ context.Context, olderThan time.Time, limit int) ([]*models.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DomainEvent
	for _, id := range s.order {
		e := s.events[id]
		if e.Processed || !e.TriggeredAt.Before(olderThan) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TriggeredAt.Before(out[j].TriggeredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored event in insertion order.
func (s *InMemoryStore) All() []*models.DomainEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.DomainEvent, 0, len(s.order))
	for _, id := range s.order {
		cp := *s.events[id]
		out = append(out, &cp)
	}
	return out
}
