package broker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBrokerDown is returned by a MemoryBroker while it simulates an outage.
var ErrBrokerDown = errors.New("memory broker unavailable")

// MemoryBroker is an in-process bus with topic logs and consumer-group offsets. It
// backs unit tests and single-process local runs (BROKER_DRIVER=memory).
type MemoryBroker struct {
	mu       sync.Mutex
	topics   map[string]*memTopic
	sessions map[*memorySession]struct{}
	down     bool
	dials    int
}

type memTopic struct {
	log    []memRecord
	groups map[string]int
	// notify is closed and replaced on every append.
	notify chan struct{}
}

type memRecord struct {
	msg OutboundMessage
	at  time.Time
}

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		topics:   make(map[string]*memTopic),
		sessions: make(map[*memorySession]struct{}),
	}
}

// Dial is a Dialer.
func (b *MemoryBroker) Dial(ctx context.Context) (Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.down {
		return nil, ErrBrokerDown
	}
	s := &memorySession{broker: b, done: make(chan struct{})}
	b.sessions[s] = struct{}{}
	return s, nil
}

// Dials returns how many times Dial was called.
func (b *MemoryBroker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// SetDown simulates an outage: open sessions are severed and dials fail until
// SetDown(false).
func (b *MemoryBroker) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
	if !down {
		return
	}
	for s := range b.sessions {
		s.closeLocked()
	}
}

// Messages returns every message published to topic, oldest first.
func (b *MemoryBroker) Messages(topic string) []OutboundMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[topic]
	if !ok {
		return nil
	}
	out := make([]OutboundMessage, len(t.log))
	for i, r := range t.log {
		out[i] = r.msg
	}
	return out
}

func (b *MemoryBroker) topicLocked(name string) *memTopic {
	t, ok := b.topics[name]
	if !ok {
		t = &memTopic{groups: make(map[string]int), notify: make(chan struct{})}
		b.topics[name] = t
	}
	return t
}

type memorySession struct {
	broker *MemoryBroker
	closed bool
	done   chan struct{}
}

func (s *memorySession) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	delete(s.broker.sessions, s)
}

func (s *memorySession) usableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.broker.down {
		return ErrBrokerDown
	}
	return nil
}

func (s *memorySession) DeclareTopic(_ context.Context, name string) error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	s.broker.topicLocked(name)
	return nil
}

func (s *memorySession) Publish(_ context.Context, topic string, msg OutboundMessage) error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	t := s.broker.topicLocked(topic)
	body := make([]byte, len(msg.Body))
	copy(body, msg.Body)
	msg.Body = body
	t.log = append(t.log, memRecord{msg: msg, at: time.Now()})
	close(t.notify)
	t.notify = make(chan struct{})
	return nil
}

func (s *memorySession) NewConsumer(_ context.Context, spec ConsumerSpec) (Consumer, error) {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return nil, err
	}
	t := s.broker.topicLocked(spec.Topic)
	mc := &memoryConsumer{session: s, spec: spec}
	if spec.Group == "" {
		mc.cursor = len(t.log)
	} else if _, ok := t.groups[spec.Group]; !ok {
		t.groups[spec.Group] = 0
	}
	return mc, nil
}

func (s *memorySession) Ping(context.Context) error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	return s.usableLocked()
}

func (s *memorySession) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.closeLocked()
	return nil
}

type memoryConsumer struct {
	session *memorySession
	spec    ConsumerSpec
	cursor  int
	closed  bool
}

func (c *memoryConsumer) position(t *memTopic) int {
	if c.spec.Group == "" {
		return c.cursor
	}
	return t.groups[c.spec.Group]
}

func (c *memoryConsumer) Next(ctx context.Context) (Delivery, error) {
	b := c.session.broker
	for {
		b.mu.Lock()
		if c.closed {
			b.mu.Unlock()
			return Delivery{}, ErrClosed
		}
		if err := c.session.usableLocked(); err != nil {
			b.mu.Unlock()
			return Delivery{}, err
		}
		t := b.topicLocked(c.spec.Topic)
		pos := c.position(t)
		if pos < len(t.log) {
			rec := t.log[pos]
			b.mu.Unlock()
			return Delivery{
				Topic:      c.spec.Topic,
				RoutingKey: rec.msg.RoutingKey,
				Body:       rec.msg.Body,
				Headers:    rec.msg.Headers,
				Timestamp:  rec.at,
				tag:        pos,
			}, nil
		}
		wait := t.notify
		done := c.session.done
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		case <-done:
		case <-wait:
		}
	}
}

func (c *memoryConsumer) Ack(_ context.Context, d Delivery) error {
	pos, ok := d.tag.(int)
	if !ok {
		return errors.New("delivery does not belong to this consumer")
	}
	b := c.session.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.spec.Group == "" {
		if pos+1 > c.cursor {
			c.cursor = pos + 1
		}
		return nil
	}
	t := b.topicLocked(c.spec.Topic)
	if pos+1 > t.groups[c.spec.Group] {
		t.groups[c.spec.Group] = pos + 1
	}
	return nil
}

func (c *memoryConsumer) Close() error {
	b := c.session.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	c.closed = true
	return nil
}
