package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Subscription is a running consumer loop.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Cancel stops the consumer loop. The in-flight handler call, if any, sees its
// context cancelled.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Done is closed when the loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the loop exited; nil after Cancel.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type binding struct {
	spec    ConsumerSpec
	kind    ExchangeKind
	pattern string
}

func (b binding) accepts(routingKey string) bool {
	if b.kind == "" {
		return true
	}
	return Matches(b.kind, b.pattern, routingKey)
}

// Consume declares a durable queue and delivers its messages to handler one at a time.
// A handler error requeues the message; it is redelivered after the requeue delay
// until the handler succeeds.
func (c *Connection) Consume(ctx context.Context, queue string, handler Handler) (*Subscription, error) {
	session, err := c.currentSession()
	if err != nil {
		return nil, err
	}
	if err := c.declare(ctx, session, queue); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	b := binding{spec: ConsumerSpec{Topic: queue, Group: queue}}
	return c.start(ctx, session, b, handler)
}

// Subscribe declares an exchange and binds an exclusive consumer to it with pattern,
// then behaves like Consume. An empty kind means KindTopic.
func (c *Connection) Subscribe(ctx context.Context, exchange, pattern string, handler Handler, kind ExchangeKind) (*Subscription, error) {
	if kind == "" {
		kind = KindTopic
	}
	if err := validatePattern(kind, pattern); err != nil {
		return nil, err
	}
	session, err := c.currentSession()
	if err != nil {
		return nil, err
	}
	if err := c.declareExchange(ctx, session, exchange, kind); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	b := binding{spec: ConsumerSpec{Topic: exchange}, kind: kind, pattern: pattern}
	return c.start(ctx, session, b, handler)
}

func (c *Connection) start(ctx context.Context, session Session, b binding, handler Handler) (*Subscription, error) {
	consumer, err := session.NewConsumer(ctx, b.spec)
	if err != nil {
		return nil, fmt.Errorf("attach consumer to %s: %w", b.spec.Topic, err)
	}
	loopCtx, cancel := context.WithCancel(c.lifetime)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	c.wg.Add(1)
	go c.run(loopCtx, sub, session, consumer, b, handler)
	return sub, nil
}

func (c *Connection) run(ctx context.Context, sub *Subscription, session Session, consumer Consumer, b binding, handler Handler) {
	defer c.wg.Done()
	defer close(sub.done)

	for {
		d, err := consumer.Next(ctx)
		if err != nil {
			_ = consumer.Close()
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("broker consumer interrupted",
				"topic", b.spec.Topic,
				"error", err,
			)
			c.reportFailure(session, err)
			session, consumer, err = c.reattach(ctx, b)
			if err != nil {
				if ctx.Err() == nil {
					sub.finish(err)
				}
				return
			}
			c.logger.Info("broker consumer reattached", "topic", b.spec.Topic)
			continue
		}

		if !b.accepts(d.RoutingKey) {
			c.metrics.incDelivery("filtered")
			_ = consumer.Ack(ctx, d)
			continue
		}
		c.deliver(ctx, consumer, d, handler)
	}
}

// reattach waits for the connection to come back and attaches a fresh consumer.
func (c *Connection) reattach(ctx context.Context, b binding) (Session, Consumer, error) {
	for {
		c.mu.Lock()
		ready, down := c.ready, c.down
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-down:
			return nil, nil, ErrGaveUp
		case <-ready:
		}

		session, err := c.currentSession()
		if err != nil {
			continue
		}
		if err := c.declare(ctx, session, b.spec.Topic); err != nil {
			c.reportFailure(session, err)
			continue
		}
		consumer, err := session.NewConsumer(ctx, b.spec)
		if err != nil {
			c.reportFailure(session, err)
			continue
		}
		return session, consumer, nil
	}
}

func (c *Connection) deliver(ctx context.Context, consumer Consumer, d Delivery, handler Handler) {
	if !json.Valid(d.Body) {
		c.logger.Error("dropping delivery with unparseable body",
			"topic", d.Topic,
			"routing_key", d.RoutingKey,
		)
		c.metrics.incDelivery("dropped")
		_ = consumer.Ack(ctx, d)
		return
	}

	for {
		err := invoke(ctx, handler, d)
		if err == nil {
			if ackErr := consumer.Ack(ctx, d); ackErr != nil {
				c.logger.Warn("broker ack failed",
					"topic", d.Topic,
					"routing_key", d.RoutingKey,
					"error", ackErr,
				)
			}
			c.metrics.incDelivery("acked")
			return
		}
		if ctx.Err() != nil {
			return
		}

		c.metrics.incDelivery("requeued")
		c.logger.Warn("delivery handler failed, requeueing",
			"topic", d.Topic,
			"routing_key", d.RoutingKey,
			"error", err,
		)
		d.Redelivered = true
		timer := time.NewTimer(c.requeueDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func invoke(ctx context.Context, handler Handler, d Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, d)
}
