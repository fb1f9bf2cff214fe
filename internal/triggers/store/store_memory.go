package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"autoflow/internal/triggers/models"
	"autoflow/pkg/platform/sentinel"
)

// InMemoryStore is a thread-safe trigger store for tests and local runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	triggers map[uuid.UUID]*models.Trigger
	// seq breaks created_at ties in insertion order.
	seq map[uuid.UUID]int
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		triggers: make(map[uuid.UUID]*models.Trigger),
		seq:      make(map[uuid.UUID]int),
	}
}

func (s *InMemoryStore) Create(_ context.Context, t *models.Trigger) error {
	if t == nil {
		return fmt.Errorf("trigger is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.triggers[t.ID]; exists {
		return fmt.Errorf("insert trigger %s: %w", t.ID, sentinel.ErrConflict)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.triggers[t.ID] = cloneTrigger(t)
	s.seq[t.ID] = len(s.seq)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.triggers[id]
	if !ok {
		return nil, fmt.Errorf("trigger %s: %w", id, sentinel.ErrNotFound)
	}
	return cloneTrigger(t), nil
}

func (s *InMemoryStore) FindMatching(_ context.Context, eventType string, tenantID uuid.UUID, order models.MatchOrder) ([]*models.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Trigger
	for _, t := range s.triggers {
		if t.Event != eventType || !t.Active || !t.AppliesTo(tenantID) {
			continue
		}
		out = append(out, cloneTrigger(t))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if order == models.MatchOrderPriority && a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return s.seq[a.ID] < s.seq[b.ID]
	})
	return out, nil
}

func (s *InMemoryStore) RecordExecution(_ context.Context, id uuid.UUID, at time.Time, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[id]
	if !ok {
		return fmt.Errorf("trigger %s: %w", id, sentinel.ErrNotFound)
	}
	ms := durationMs(duration)
	avg := ms
	if t.AvgExecutionTimeMs != nil && t.ExecutionCount > 0 {
		avg = (*t.AvgExecutionTimeMs*float64(t.ExecutionCount) + ms) / float64(t.ExecutionCount+1)
	}
	t.ExecutionCount++
	executedAt := at
	t.LastExecutedAt = &executedAt
	t.AvgExecutionTimeMs = &avg
	return nil
}

// SetActive flips a trigger's active flag.
func (s *InMemoryStore) SetActive(id uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.triggers[id]; ok {
		t.Active = active
	}
}

func cloneTrigger(t *models.Trigger) *models.Trigger {
	out := *t
	if t.TenantID != nil {
		id := *t.TenantID
		out.TenantID = &id
	}
	if t.LastExecutedAt != nil {
		at := *t.LastExecutedAt
		out.LastExecutedAt = &at
	}
	if t.AvgExecutionTimeMs != nil {
		avg := *t.AvgExecutionTimeMs
		out.AvgExecutionTimeMs = &avg
	}
	out.Conditions = append(models.Conditions(nil), t.Conditions...)
	out.Actions = append([]byte(nil), t.Actions...)
	return &out
}
