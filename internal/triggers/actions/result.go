package actions

import (
	"time"

	eventmodels "autoflow/internal/events/models"
	"autoflow/internal/triggers/models"
)

// Status is the coarse result of one action.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Outcome is what a handler reports back.
type Outcome struct {
	Status Status
	Detail string
}

func Succeeded(detail string) Outcome { return Outcome{Status: StatusSucceeded, Detail: detail} }
func Skipped(detail string) Outcome   { return Outcome{Status: StatusSkipped, Detail: detail} }

// ActionResult records one dispatched action. Err is set exactly when the outcome is
// failed; callers decide whether to look at it.
type ActionResult struct {
	Index       int
	Type        models.ActionType
	Description string
	Outcome     Outcome
	Err         error
	Duration    time.Duration
}

// Failed reports whether the action did not complete.
func (r ActionResult) Failed() bool {
	return r.Outcome.Status == StatusFailed
}

// Invocation is the context an action runs in.
type Invocation struct {
	Event   *eventmodels.DomainEvent
	Trigger *models.Trigger
}
