package actions

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoflow/internal/triggers/models"
)

func TestNotificationPublishesToTenantChannel(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()

	ctx := context.Background()
	inv := testInvocation()
	sub := client.Subscribe(ctx, NotificationChannel(inv.Event.TenantID))
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	h := NewNotificationHandler(client, nil, nil)
	out, err := h.Execute(ctx, models.NotificationAction{Role: "sales", Title: "New WhatsApp lead"}, inv)
	require.NoError(t, err)
	assert.Equal(t, "delivered to 1 subscribers", out.Detail)

	select {
	case msg := <-sub.Channel():
		var n Notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
		assert.Equal(t, "New WhatsApp lead", n.Title)
		assert.Equal(t, "sales", n.Role)
		assert.Equal(t, "normal", n.Priority)
		assert.Equal(t, inv.Event.EntityID.String(), n.Source.EntityID)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not received")
	}
}

func TestNotificationWithoutRedisLogs(t *testing.T) {
	h := NewNotificationHandler(nil, nil, nil)
	out, err := h.Execute(context.Background(), models.NotificationAction{Title: "hello"}, testInvocation())
	require.NoError(t, err)
	assert.Equal(t, Succeeded("logged"), out)
}
