package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"autoflow/internal/triggers/models"
)

// Queues the queue-backed actions publish to. Workers owning those features consume them.
const (
	QueueWorkflows  = "automation.workflows"
	QueueMessages   = "automation.messages"
	QueueActivities = "automation.activities"
)

// QueuePublisher enqueues durable work.
type QueuePublisher interface {
	PublishToQueue(ctx context.Context, queue string, message any) error
}

// Source identifies which trigger and event produced a job.
type Source struct {
	TriggerID  string `json:"triggerId"`
	EventID    string `json:"eventId,omitempty"`
	EventType  string `json:"eventType"`
	TenantID   string `json:"tenantId"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
}

func sourceOf(inv Invocation) Source {
	s := Source{
		TriggerID:  inv.Trigger.ID.String(),
		EventType:  inv.Event.EventType,
		TenantID:   inv.Event.TenantID.String(),
		EntityType: inv.Event.EntityType,
		EntityID:   inv.Event.EntityID.String(),
	}
	if inv.Event.ID != uuid.Nil {
		s.EventID = inv.Event.ID.String()
	}
	return s
}

type WorkflowJob struct {
	Source     Source         `json:"source"`
	WorkflowID string         `json:"workflowId"`
	Input      map[string]any `json:"input,omitempty"`
	Data       map[string]any `json:"data"`
	QueuedAt   time.Time      `json:"queuedAt"`
}

type MessageJob struct {
	Source   Source         `json:"source"`
	Channel  string         `json:"channel"`
	To       string         `json:"to,omitempty"`
	Template string         `json:"template,omitempty"`
	Body     string         `json:"body,omitempty"`
	Data     map[string]any `json:"data"`
	QueuedAt time.Time      `json:"queuedAt"`
}

type ActivityJob struct {
	Source       Source    `json:"source"`
	ActivityType string    `json:"activityType"`
	Subject      string    `json:"subject,omitempty"`
	Description  string    `json:"description,omitempty"`
	AssigneeID   string    `json:"assigneeId,omitempty"`
	QueuedAt     time.Time `json:"queuedAt"`
}

// QueueHandlers implements the workflow, message and activity actions by enqueueing a
// job for the owning worker.
type QueueHandlers struct {
	publisher QueuePublisher
	now       func() time.Time
}

func NewQueueHandlers(publisher QueuePublisher, now func() time.Time) *QueueHandlers {
	if now == nil {
		now = time.Now
	}
	return &QueueHandlers{publisher: publisher, now: now}
}

func (q *QueueHandlers) enqueue(ctx context.Context, queue string, job any) (Outcome, error) {
	if err := q.publisher.PublishToQueue(ctx, queue, job); err != nil {
		return Outcome{}, fmt.Errorf("enqueue to %s: %w", queue, err)
	}
	return Succeeded("queued on " + queue), nil
}

// Workflow returns the workflow action handler.
func (q *QueueHandlers) Workflow() Handler[models.WorkflowAction] {
	return HandlerFunc[models.WorkflowAction](func(ctx context.Context, a models.WorkflowAction, inv Invocation) (Outcome, error) {
		return q.enqueue(ctx, QueueWorkflows, WorkflowJob{
			Source:     sourceOf(inv),
			WorkflowID: a.WorkflowID,
			Input:      a.Input,
			Data:       inv.Event.Payload,
			QueuedAt:   q.now().UTC(),
		})
	})
}

// Message returns the message action handler.
func (q *QueueHandlers) Message() Handler[models.MessageAction] {
	return HandlerFunc[models.MessageAction](func(ctx context.Context, a models.MessageAction, inv Invocation) (Outcome, error) {
		return q.enqueue(ctx, QueueMessages, MessageJob{
			Source:   sourceOf(inv),
			Channel:  a.Channel,
			To:       a.To,
			Template: a.Template,
			Body:     a.Body,
			Data:     inv.Event.Payload,
			QueuedAt: q.now().UTC(),
		})
	})
}

// Activity returns the activity action handler.
func (q *QueueHandlers) Activity() Handler[models.ActivityAction] {
	return HandlerFunc[models.ActivityAction](func(ctx context.Context, a models.ActivityAction, inv Invocation) (Outcome, error) {
		return q.enqueue(ctx, QueueActivities, ActivityJob{
			Source:       sourceOf(inv),
			ActivityType: a.ActivityType,
			Subject:      a.Subject,
			Description:  a.Description,
			AssigneeID:   a.AssigneeID,
			QueuedAt:     q.now().UTC(),
		})
	})
}
