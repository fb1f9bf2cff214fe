package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ActionType tags an ActionSpec.
type ActionType string

const (
	ActionWebhook      ActionType = "webhook"
	ActionWorkflow     ActionType = "workflow"
	ActionMessage      ActionType = "message"
	ActionNotification ActionType = "notification"
	ActionActivity     ActionType = "activity"
)

var (
	ErrUnknownActionType = errors.New("unknown action type")
	ErrInvalidAction     = errors.New("invalid action config")
)

// ActionSpec is the stored, untyped form of an action.
type ActionSpec struct {
	Type        ActionType      `json:"type"`
	Description string          `json:"description,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// NewActionSpec encodes a typed action back into its stored form.
func NewActionSpec(a Action, description string) (ActionSpec, error) {
	cfg, err := json.Marshal(a)
	if err != nil {
		return ActionSpec{}, fmt.Errorf("encode %s action: %w", a.Kind(), err)
	}
	return ActionSpec{Type: a.Kind(), Description: description, Config: cfg}, nil
}

// Action is the closed set of things a trigger can do. Each variant carries its own
// typed config.
type Action interface {
	Kind() ActionType
	validate() error
}

// WebhookAction calls an external HTTP endpoint with the trigger and event.
type WebhookAction struct {
	URL            string            `json:"url"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
}

// WorkflowAction starts a workflow run.
type WorkflowAction struct {
	WorkflowID string         `json:"workflowId"`
	Input      map[string]any `json:"input,omitempty"`
}

// MessageAction sends an outbound message to a contact.
type MessageAction struct {
	Channel  string `json:"channel"`
	To       string `json:"to,omitempty"`
	Template string `json:"template,omitempty"`
	Body     string `json:"body,omitempty"`
}

// NotificationAction notifies a user or role inside the tenant.
type NotificationAction struct {
	UserID   string `json:"userId,omitempty"`
	Role     string `json:"role,omitempty"`
	Title    string `json:"title"`
	Body     string `json:"body,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// ActivityAction records an activity on the event's entity.
type ActivityAction struct {
	ActivityType string `json:"activityType"`
	Subject      string `json:"subject,omitempty"`
	Description  string `json:"description,omitempty"`
	AssigneeID   string `json:"assigneeId,omitempty"`
}

func (WebhookAction) Kind() ActionType      { return ActionWebhook }
func (WorkflowAction) Kind() ActionType     { return ActionWorkflow }
func (MessageAction) Kind() ActionType      { return ActionMessage }
func (NotificationAction) Kind() ActionType { return ActionNotification }
func (ActivityAction) Kind() ActionType     { return ActionActivity }

// HTTPMethod defaults to POST.
func (a WebhookAction) HTTPMethod() string {
	if a.Method == "" {
		return "POST"
	}
	return strings.ToUpper(a.Method)
}

// Timeout returns the configured timeout or fallback.
func (a WebhookAction) Timeout(fallback time.Duration) time.Duration {
	if a.TimeoutSeconds <= 0 {
		return fallback
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func (a WebhookAction) validate() error {
	u, err := url.Parse(a.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("webhook url %q must be an absolute http(s) url", a.URL)
	}
	switch a.HTTPMethod() {
	case "POST", "PUT", "PATCH":
	default:
		return fmt.Errorf("webhook method %q not allowed", a.Method)
	}
	return nil
}

func (a WorkflowAction) validate() error {
	if a.WorkflowID == "" {
		return errors.New("workflowId is required")
	}
	return nil
}

var messageChannels = map[string]struct{}{"whatsapp": {}, "sms": {}, "email": {}}

func (a MessageAction) validate() error {
	if _, ok := messageChannels[a.Channel]; !ok {
		return fmt.Errorf("message channel %q not supported", a.Channel)
	}
	if a.Template == "" && a.Body == "" {
		return errors.New("message needs a template or a body")
	}
	return nil
}

func (a NotificationAction) validate() error {
	if a.Title == "" {
		return errors.New("notification title is required")
	}
	return nil
}

func (a ActivityAction) validate() error {
	if a.ActivityType == "" {
		return errors.New("activityType is required")
	}
	return nil
}

// Decode turns the stored spec into its typed variant.
func (s ActionSpec) Decode() (Action, error) {
	var (
		action Action
		err    error
	)
	switch s.Type {
	case ActionWebhook:
		action, err = decodeConfig[WebhookAction](s.Config)
	case ActionWorkflow:
		action, err = decodeConfig[WorkflowAction](s.Config)
	case ActionMessage:
		action, err = decodeConfig[MessageAction](s.Config)
	case ActionNotification:
		action, err = decodeConfig[NotificationAction](s.Config)
	case ActionActivity:
		action, err = decodeConfig[ActivityAction](s.Config)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, s.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidAction, s.Type, err)
	}
	if err := action.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidAction, s.Type, err)
	}
	return action, nil
}

func decodeConfig[A Action](raw json.RawMessage) (A, error) {
	var a A
	if len(raw) == 0 || string(raw) == "null" {
		return a, nil
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return a, err
	}
	return a, nil
}
