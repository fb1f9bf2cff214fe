package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the durable record of something that happened in a tenant's business.
// Only the trigger processor changes it, and only to mark it processed.
type DomainEvent struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	EventType   string
	EntityType  string
	EntityID    uuid.UUID
	Payload     map[string]any
	Metadata    map[string]any
	TriggeredAt time.Time
	Processed   bool
	ProcessedAt *time.Time
}

// EmitSpec is what business code hands to the emitter.
type EmitSpec struct {
	EventType  string
	TenantID   uuid.UUID
	EntityType string
	EntityID   uuid.UUID
	Data       map[string]any
	Metadata   map[string]any
}

var (
	ErrMissingEventType  = errors.New("event type is required")
	ErrMissingTenant     = errors.New("tenant id is required")
	ErrMissingEntityType = errors.New("entity type is required")
	// ErrMissingEntityID guards MarkProcessed, which matches on tenant, type and entity.
	ErrMissingEntityID = errors.New("entity id is required")
)

// Validate checks the fields every event row needs.
func (s EmitSpec) Validate() error {
	if s.EventType == "" {
		return ErrMissingEventType
	}
	if s.TenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if s.EntityType == "" {
		return ErrMissingEntityType
	}
	if s.EntityID == uuid.Nil {
		return ErrMissingEntityID
	}
	return nil
}
