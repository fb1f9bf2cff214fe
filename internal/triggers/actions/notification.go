package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"autoflow/internal/triggers/models"
)

const notificationChannelPrefix = "autoflow:notifications:"

// NotificationChannel is the Redis pub/sub channel for a tenant's in-app notifications.
func NotificationChannel(tenantID uuid.UUID) string {
	return notificationChannelPrefix + tenantID.String()
}

// Notification is the message published for connected clients.
type Notification struct {
	ID        string    `json:"id"`
	Source    Source    `json:"source"`
	UserID    string    `json:"userId,omitempty"`
	Role      string    `json:"role,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Priority  string    `json:"priority"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationHandler publishes notifications on Redis. Without a client it only logs
// them, which keeps single-node setups without Redis working.
type NotificationHandler struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewNotificationHandler(client *redis.Client, logger *slog.Logger, now func() time.Time) *NotificationHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if now == nil {
		now = time.Now
	}
	return &NotificationHandler{client: client, logger: logger, now: now}
}

func (h *NotificationHandler) Execute(ctx context.Context, action models.NotificationAction, inv Invocation) (Outcome, error) {
	priority := action.Priority
	if priority == "" {
		priority = "normal"
	}
	n := Notification{
		ID:        uuid.NewString(),
		Source:    sourceOf(inv),
		UserID:    action.UserID,
		Role:      action.Role,
		Title:     action.Title,
		Body:      action.Body,
		Priority:  priority,
		CreatedAt: h.now().UTC(),
	}

	if h.client == nil {
		h.logger.InfoContext(ctx, "notification",
			"tenant_id", inv.Event.TenantID,
			"user_id", n.UserID,
			"role", n.Role,
			"title", n.Title,
			"trigger_id", inv.Trigger.ID,
		)
		return Succeeded("logged"), nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode notification: %w", err)
	}
	receivers, err := h.client.Publish(ctx, NotificationChannel(inv.Event.TenantID), payload).Result()
	if err != nil {
		return Outcome{}, fmt.Errorf("publish notification: %w", err)
	}
	return Succeeded(fmt.Sprintf("delivered to %d subscribers", receivers)), nil
}
