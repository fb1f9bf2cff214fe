package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	eventmodels "autoflow/internal/events/models"
	"autoflow/internal/triggers/metrics"
	"autoflow/internal/triggers/models"
)

// ErrCircuitOpen is returned while a webhook host is cooling down.
var ErrCircuitOpen = errors.New("webhook circuit open")

const maxWebhookErrorBody = 512

// WebhookPayload is the JSON body sent to webhook endpoints.
type WebhookPayload struct {
	Trigger WebhookTrigger       `json:"trigger"`
	Event   eventmodels.Envelope `json:"event"`
}

type WebhookTrigger struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WebhookHandler delivers events to tenant-configured HTTP endpoints.
type WebhookHandler struct {
	client         *http.Client
	defaultTimeout time.Duration
	breakers       *breakers
	metrics        *metrics.Metrics
}

type WebhookOption func(*WebhookHandler)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(h *WebhookHandler) {
		if c != nil {
			h.client = c
		}
	}
}

// WithCircuitBreaker sets the per-host failure threshold and cooldown.
func WithCircuitBreaker(threshold int, cooldown time.Duration, now func() time.Time) WebhookOption {
	return func(h *WebhookHandler) {
		h.breakers = newBreakers(threshold, cooldown, now)
	}
}

func WithWebhookMetrics(m *metrics.Metrics) WebhookOption {
	return func(h *WebhookHandler) {
		h.metrics = m
	}
}

// NewWebhookHandler builds a handler whose calls time out after defaultTimeout unless
// the action sets its own.
func NewWebhookHandler(defaultTimeout time.Duration, opts ...WebhookOption) *WebhookHandler {
	h := &WebhookHandler{
		client:         &http.Client{},
		defaultTimeout: defaultTimeout,
		breakers:       newBreakers(5, time.Minute, time.Now),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *WebhookHandler) Execute(ctx context.Context, action models.WebhookAction, inv Invocation) (Outcome, error) {
	target, err := url.Parse(action.URL)
	if err != nil {
		return Outcome{}, fmt.Errorf("parse webhook url: %w", err)
	}
	b := h.breakers.get(target.Host)
	if !b.allow() {
		h.metrics.IncWebhookRejection(target.Host)
		return Outcome{Detail: "circuit open"}, fmt.Errorf("%w: %s", ErrCircuitOpen, target.Host)
	}

	body, err := json.Marshal(WebhookPayload{
		Trigger: WebhookTrigger{ID: inv.Trigger.ID.String(), Name: inv.Trigger.Name},
		Event:   eventmodels.NewEnvelope(inv.Event),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("encode webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, action.Timeout(h.defaultTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, action.HTTPMethod(), action.URL, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "autoflow-webhook/1")
	req.Header.Set("X-Autoflow-Event", inv.Event.EventType)
	req.Header.Set("X-Autoflow-Trigger", inv.Trigger.ID.String())
	for k, v := range action.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		b.recordFailure()
		return Outcome{}, fmt.Errorf("call webhook %s: %w", target.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		b.recordFailure()
		return Outcome{Detail: resp.Status}, fmt.Errorf("webhook %s returned %s: %s", target.Host, resp.Status, readSnippet(resp.Body))
	}
	// a 4xx is the endpoint rejecting this call, not the host being down
	b.recordSuccess()
	if resp.StatusCode >= 300 {
		return Outcome{Detail: resp.Status}, fmt.Errorf("webhook %s returned %s: %s", target.Host, resp.Status, readSnippet(resp.Body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return Succeeded(resp.Status), nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxWebhookErrorBody))
	return string(bytes.TrimSpace(b))
}
