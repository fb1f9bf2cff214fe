package actions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoflow/internal/triggers/models"
)

func TestWebhookDelivers(t *testing.T) {
	inv := testInvocation()
	var got WebhookPayload
	var headers http.Header
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	h := NewWebhookHandler(time.Second)
	out, err := h.Execute(context.Background(), models.WebhookAction{
		URL:     srv.URL + "/hooks/lead",
		Method:  "put",
		Headers: map[string]string{"X-Api-Key": "secret"},
	}, inv)
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, out.Status)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "secret", headers.Get("X-Api-Key"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, inv.Event.EventType, headers.Get("X-Autoflow-Event"))
	assert.Equal(t, inv.Trigger.Name, got.Trigger.Name)
	assert.Equal(t, inv.Event.EntityID.String(), got.Event.EntityID)
	assert.Equal(t, "whatsapp", got.Event.Data["source"])
}

func TestWebhookClientErrorDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad signature", http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := NewWebhookHandler(time.Second, WithCircuitBreaker(1, time.Hour, nil))
	for i := 0; i < 3; i++ {
		_, err := h.Execute(context.Background(), models.WebhookAction{URL: srv.URL}, testInvocation())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad signature")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookBreakerOpensAndRecovers(t *testing.T) {
	var healthy atomic.Bool
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	h := NewWebhookHandler(time.Second, WithCircuitBreaker(2, time.Minute, clock))
	action := models.WebhookAction{URL: srv.URL}

	for i := 0; i < 2; i++ {
		_, err := h.Execute(context.Background(), action, testInvocation())
		require.Error(t, err)
	}
	_, err := h.Execute(context.Background(), action, testInvocation())
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())

	healthy.Store(true)
	now = now.Add(2 * time.Minute)
	out, err := h.Execute(context.Background(), action, testInvocation())
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, out.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	h := NewWebhookHandler(20 * time.Millisecond)
	start := time.Now()
	_, err := h.Execute(context.Background(), models.WebhookAction{URL: srv.URL}, testInvocation())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
