package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Trigger is a tenant rule: when Event happens and Conditions hold, run Actions in order.
// Conditions and Actions keep their stored JSON so one malformed rule cannot poison a
// whole match set; they are decoded per evaluation.
type Trigger struct {
	ID                 uuid.UUID       `json:"id"`
	TenantID           *uuid.UUID      `json:"tenant_id,omitempty"`
	Name               string          `json:"name"`
	Event              string          `json:"event"`
	Conditions         Conditions      `json:"conditions,omitempty"`
	Actions            json.RawMessage `json:"actions"`
	Active             bool            `json:"is_active"`
	Priority           int             `json:"priority"`
	ExecutionCount     int64           `json:"execution_count"`
	LastExecutedAt     *time.Time      `json:"last_executed_at,omitempty"`
	AvgExecutionTimeMs *float64        `json:"avg_execution_time_ms,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// IsGlobal reports whether the trigger applies to every tenant.
func (t *Trigger) IsGlobal() bool {
	return t.TenantID == nil
}

// AppliesTo reports whether the trigger is scoped to tenantID or global.
func (t *Trigger) AppliesTo(tenantID uuid.UUID) bool {
	return t.TenantID == nil || *t.TenantID == tenantID
}

// ActionSpecs decodes the stored action list.
func (t *Trigger) ActionSpecs() ([]ActionSpec, error) {
	if len(t.Actions) == 0 || string(t.Actions) == "null" {
		return nil, nil
	}
	var specs []ActionSpec
	if err := json.Unmarshal(t.Actions, &specs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidActions, err)
	}
	return specs, nil
}

// EncodeActions is the inverse of ActionSpecs.
func EncodeActions(specs ...ActionSpec) (json.RawMessage, error) {
	if specs == nil {
		specs = []ActionSpec{}
	}
	raw, err := json.Marshal(specs)
	if err != nil {
		return nil, fmt.Errorf("encode actions: %w", err)
	}
	return raw, nil
}

// MatchOrder selects how matching triggers are ordered.
type MatchOrder string

const (
	// MatchOrderCreated runs triggers oldest first, ignoring priority.
	MatchOrderCreated MatchOrder = "created"
	// MatchOrderPriority runs higher priority first, then oldest first.
	MatchOrderPriority MatchOrder = "priority"
)

// ParseMatchOrder maps a config value to a MatchOrder.
func ParseMatchOrder(s string) (MatchOrder, error) {
	switch MatchOrder(s) {
	case "", MatchOrderCreated:
		return MatchOrderCreated, nil
	case MatchOrderPriority:
		return MatchOrderPriority, nil
	default:
		return "", fmt.Errorf("unknown trigger match order %q", s)
	}
}
