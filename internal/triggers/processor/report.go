package processor

import (
	"time"

	"github.com/google/uuid"

	"autoflow/internal/triggers/actions"
)

// Report describes what happened to one event. ProcessEvent never fails; callers
// inspect the report when they care.
type Report struct {
	EventType string
	Triggers  []TriggerReport
	// MarkedProcessed is the number of event rows flipped to processed.
	MarkedProcessed int64
	// Err is a lookup or bookkeeping failure outside any single trigger.
	Err      error
	Duration time.Duration
}

// Executed counts triggers whose actions ran.
func (r Report) Executed() int {
	n := 0
	for _, t := range r.Triggers {
		if t.Executed {
			n++
		}
	}
	return n
}

// TriggerReport covers one matched trigger.
type TriggerReport struct {
	TriggerID  uuid.UUID
	Name       string
	Conditions ConditionResult
	Executed   bool
	Actions    []actions.ActionResult
	Duration   time.Duration
	// Err is set when the trigger's data was malformed or its statistics could not be
	// recorded.
	Err error
}

// FailedActions counts failed action results.
func (t TriggerReport) FailedActions() int {
	n := 0
	for _, a := range t.Actions {
		if a.Failed() {
			n++
		}
	}
	return n
}
