package actions

import (
	"context"

	"autoflow/internal/triggers/models"
)

// Handler executes one variant of the action sum type.
type Handler[A models.Action] interface {
	Execute(ctx context.Context, action A, inv Invocation) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[A models.Action] func(ctx context.Context, action A, inv Invocation) (Outcome, error)

func (f HandlerFunc[A]) Execute(ctx context.Context, action A, inv Invocation) (Outcome, error) {
	return f(ctx, action, inv)
}

// Handlers is the fixed registry, one handler per action type. A nil entry makes
// that type fail with ErrUnsupportedAction.
type Handlers struct {
	Webhook      Handler[models.WebhookAction]
	Workflow     Handler[models.WorkflowAction]
	Message      Handler[models.MessageAction]
	Notification Handler[models.NotificationAction]
	Activity     Handler[models.ActivityAction]
}
