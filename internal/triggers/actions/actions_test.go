package actions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventmodels "autoflow/internal/events/models"
	"autoflow/internal/triggers/models"
)

func testInvocation() Invocation {
	tenant := uuid.New()
	return Invocation{
		Event: &eventmodels.DomainEvent{
			ID:          uuid.New(),
			TenantID:    tenant,
			EventType:   eventmodels.EventLeadCreated,
			EntityType:  eventmodels.EntityLead,
			EntityID:    uuid.New(),
			Payload:     map[string]any{"source": "whatsapp"},
			TriggeredAt: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
		},
		Trigger: &models.Trigger{
			ID:       uuid.New(),
			TenantID: &tenant,
			Name:     "welcome lead",
			Event:    eventmodels.EventLeadCreated,
			Active:   true,
		},
	}
}

type recordingPublisher struct {
	queue   string
	message any
	err     error
}

func (r *recordingPublisher) PublishToQueue(_ context.Context, queue string, message any) error {
	r.queue = queue
	r.message = message
	return r.err
}

func TestDispatchRoutesEveryVariant(t *testing.T) {
	var called []models.ActionType
	record := func(kind models.ActionType) {
		called = append(called, kind)
	}
	d := NewDispatcher(Handlers{
		Webhook: HandlerFunc[models.WebhookAction](func(context.Context, models.WebhookAction, Invocation) (Outcome, error) {
			record(models.ActionWebhook)
			return Succeeded("200 OK"), nil
		}),
		Workflow: HandlerFunc[models.WorkflowAction](func(context.Context, models.WorkflowAction, Invocation) (Outcome, error) {
			record(models.ActionWorkflow)
			return Outcome{}, nil
		}),
		Message: HandlerFunc[models.MessageAction](func(context.Context, models.MessageAction, Invocation) (Outcome, error) {
			record(models.ActionMessage)
			return Skipped("no recipient"), nil
		}),
		Notification: HandlerFunc[models.NotificationAction](func(context.Context, models.NotificationAction, Invocation) (Outcome, error) {
			record(models.ActionNotification)
			return Succeeded("logged"), nil
		}),
		Activity: HandlerFunc[models.ActivityAction](func(context.Context, models.ActivityAction, Invocation) (Outcome, error) {
			record(models.ActionActivity)
			return Succeeded(""), nil
		}),
	})

	inv := testInvocation()
	actions := []models.Action{
		models.WebhookAction{URL: "https://example.com"},
		models.WorkflowAction{WorkflowID: "wf"},
		models.MessageAction{Channel: "sms", Body: "hi"},
		models.NotificationAction{Title: "t"},
		models.ActivityAction{ActivityType: "call"},
	}
	for _, a := range actions {
		res := d.Dispatch(context.Background(), a, inv)
		assert.NoError(t, res.Err)
		assert.False(t, res.Failed())
		assert.Equal(t, a.Kind(), res.Type)
	}
	assert.Equal(t, []models.ActionType{
		models.ActionWebhook, models.ActionWorkflow, models.ActionMessage, models.ActionNotification, models.ActionActivity,
	}, called)
}

func TestDispatchFailures(t *testing.T) {
	inv := testInvocation()

	t.Run("missing handler", func(t *testing.T) {
		d := NewDispatcher(Handlers{})
		res := d.Dispatch(context.Background(), models.ActivityAction{ActivityType: "call"}, inv)
		assert.True(t, res.Failed())
		assert.ErrorIs(t, res.Err, ErrUnsupportedAction)
	})

	t.Run("handler error", func(t *testing.T) {
		boom := errors.New("downstream unavailable")
		d := NewDispatcher(Handlers{
			Workflow: HandlerFunc[models.WorkflowAction](func(context.Context, models.WorkflowAction, Invocation) (Outcome, error) {
				return Outcome{Detail: "queue"}, boom
			}),
		})
		res := d.Dispatch(context.Background(), models.WorkflowAction{WorkflowID: "wf"}, inv)
		assert.True(t, res.Failed())
		assert.ErrorIs(t, res.Err, boom)
		assert.Equal(t, "queue", res.Outcome.Detail)
	})

	t.Run("handler panic", func(t *testing.T) {
		d := NewDispatcher(Handlers{
			Notification: HandlerFunc[models.NotificationAction](func(context.Context, models.NotificationAction, Invocation) (Outcome, error) {
				panic("nil map")
			}),
		})
		res := d.Dispatch(context.Background(), models.NotificationAction{Title: "t"}, inv)
		assert.True(t, res.Failed())
		assert.Contains(t, res.Err.Error(), "panicked")
	})

	t.Run("spec that does not decode", func(t *testing.T) {
		d := NewDispatcher(Handlers{})
		res := d.Execute(context.Background(), models.ActionSpec{Type: "carrier_pigeon", Description: "coo"}, inv)
		assert.True(t, res.Failed())
		assert.ErrorIs(t, res.Err, models.ErrUnknownActionType)
		assert.Equal(t, "coo", res.Description)
	})
}

func TestQueueHandlers(t *testing.T) {
	now := time.Date(2026, 4, 1, 11, 0, 0, 0, time.UTC)
	inv := testInvocation()

	t.Run("workflow", func(t *testing.T) {
		pub := &recordingPublisher{}
		q := NewQueueHandlers(pub, func() time.Time { return now })
		out, err := q.Workflow().Execute(context.Background(), models.WorkflowAction{WorkflowID: "onboard", Input: map[string]any{"step": 1}}, inv)
		require.NoError(t, err)
		assert.Equal(t, StatusSucceeded, out.Status)
		assert.Equal(t, QueueWorkflows, pub.queue)

		job, ok := pub.message.(WorkflowJob)
		require.True(t, ok)
		assert.Equal(t, "onboard", job.WorkflowID)
		assert.Equal(t, inv.Trigger.ID.String(), job.Source.TriggerID)
		assert.Equal(t, inv.Event.ID.String(), job.Source.EventID)
		assert.Equal(t, "whatsapp", job.Data["source"])
		assert.Equal(t, now, job.QueuedAt)
	})

	t.Run("message", func(t *testing.T) {
		pub := &recordingPublisher{}
		q := NewQueueHandlers(pub, nil)
		_, err := q.Message().Execute(context.Background(), models.MessageAction{Channel: "whatsapp", Template: "welcome"}, inv)
		require.NoError(t, err)
		assert.Equal(t, QueueMessages, pub.queue)

		raw, err := json.Marshal(pub.message)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"template":"welcome"`)
	})

	t.Run("activity publish failure", func(t *testing.T) {
		pub := &recordingPublisher{err: errors.New("channel not initialized")}
		q := NewQueueHandlers(pub, nil)
		_, err := q.Activity().Execute(context.Background(), models.ActivityAction{ActivityType: "call"}, inv)
		require.Error(t, err)
		assert.Equal(t, QueueActivities, pub.queue)
	})
}
