package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ExchangeKind selects how an exchange routes messages to bound subscribers.
type ExchangeKind string

const (
	KindTopic  ExchangeKind = "topic"
	KindDirect ExchangeKind = "direct"
	KindFanout ExchangeKind = "fanout"
)

// Valid reports whether the kind is supported.
func (k ExchangeKind) Valid() bool {
	switch k {
	case KindTopic, KindDirect, KindFanout:
		return true
	}
	return false
}

const (
	headerRoutingKey  = "routing-key"
	headerContentType = "content-type"
	contentTypeJSON   = "application/json"
)

// OutboundMessage is what a Session writes to a topic.
type OutboundMessage struct {
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

// Delivery is a message handed to a consumer handler.
type Delivery struct {
	Topic       string
	RoutingKey  string
	Body        []byte
	Headers     map[string]string
	Timestamp   time.Time
	Redelivered bool

	// tag lets a session map the delivery back to its own record for acks.
	tag any
}

// Decode unmarshals the JSON body into v.
func (d Delivery) Decode(v any) error {
	if err := json.Unmarshal(d.Body, v); err != nil {
		return fmt.Errorf("decode delivery body: %w", err)
	}
	return nil
}

// Handler processes one delivery. A nil return acknowledges the message; an error
// requeues it for redelivery.
type Handler func(ctx context.Context, d Delivery) error

func encodeMessage(message any) ([]byte, error) {
	switch m := message.(type) {
	case []byte:
		if !json.Valid(m) {
			return nil, fmt.Errorf("message body is not valid JSON")
		}
		return m, nil
	case json.RawMessage:
		if !json.Valid(m) {
			return nil, fmt.Errorf("message body is not valid JSON")
		}
		return m, nil
	}
	body, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return body, nil
}
