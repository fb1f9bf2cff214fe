package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the JSON broadcast on the events exchange, routed by EventType.
type Envelope struct {
	EventID    string         `json:"eventId,omitempty"`
	EventType  string         `json:"eventType"`
	TenantID   string         `json:"tenantId"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Data       map[string]any `json:"data"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewEnvelope builds the wire form of an event.
func NewEnvelope(e *DomainEvent) Envelope {
	data := e.Payload
	if data == nil {
		data = map[string]any{}
	}
	env := Envelope{
		EventType:  e.EventType,
		TenantID:   e.TenantID.String(),
		EntityType: e.EntityType,
		EntityID:   e.EntityID.String(),
		Data:       data,
		Metadata:   e.Metadata,
		Timestamp:  e.TriggeredAt,
	}
	if e.ID != uuid.Nil {
		env.EventID = e.ID.String()
	}
	return env
}

// ToEvent parses the wire form back into an unprocessed DomainEvent.
func (env Envelope) ToEvent() (DomainEvent, error) {
	if env.EventType == "" {
		return DomainEvent{}, ErrMissingEventType
	}
	tenantID, err := uuid.Parse(env.TenantID)
	if err != nil {
		return DomainEvent{}, fmt.Errorf("parse tenant id: %w", err)
	}
	entityID, err := uuid.Parse(env.EntityID)
	if err != nil {
		return DomainEvent{}, fmt.Errorf("parse entity id: %w", err)
	}
	ev := DomainEvent{
		TenantID:    tenantID,
		EventType:   env.EventType,
		EntityType:  env.EntityType,
		EntityID:    entityID,
		Payload:     env.Data,
		Metadata:    env.Metadata,
		TriggeredAt: env.Timestamp,
	}
	if env.EventID != "" {
		if id, err := uuid.Parse(env.EventID); err == nil {
			ev.ID = id
		}
	}
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	return ev, nil
}
