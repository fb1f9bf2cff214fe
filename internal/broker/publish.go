package broker

import (
	"context"
	"fmt"
)

// PublishToQueue declares a durable queue and enqueues a persistent JSON message.
// message may be a value to marshal, a []byte or a json.RawMessage holding JSON.
func (c *Connection) PublishToQueue(ctx context.Context, queue string, message any) error {
	session, err := c.currentSession()
	if err != nil {
		return err
	}
	body, err := encodeMessage(message)
	if err != nil {
		return err
	}
	if err := c.declare(ctx, session, queue); err != nil {
		c.metrics.incPublishFailure("queue")
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	msg := OutboundMessage{
		RoutingKey: queue,
		Body:       body,
		Headers:    map[string]string{headerContentType: contentTypeJSON},
	}
	if err := session.Publish(ctx, queue, msg); err != nil {
		c.metrics.incPublishFailure("queue")
		return fmt.Errorf("publish to queue %s: %w", queue, err)
	}
	c.metrics.incPublished("queue")
	return nil
}

// PublishToExchange declares a durable exchange of the given kind and publishes a JSON
// message with routingKey. An empty kind means KindTopic.
func (c *Connection) PublishToExchange(ctx context.Context, exchange, routingKey string, message any, kind ExchangeKind) error {
	if kind == "" {
		kind = KindTopic
	}
	session, err := c.currentSession()
	if err != nil {
		return err
	}
	body, err := encodeMessage(message)
	if err != nil {
		return err
	}
	if err := c.declareExchange(ctx, session, exchange, kind); err != nil {
		c.metrics.incPublishFailure("exchange")
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	msg := OutboundMessage{
		RoutingKey: routingKey,
		Body:       body,
		Headers: map[string]string{
			headerContentType: contentTypeJSON,
			headerRoutingKey:  routingKey,
		},
	}
	if err := session.Publish(ctx, exchange, msg); err != nil {
		c.metrics.incPublishFailure("exchange")
		return fmt.Errorf("publish to exchange %s: %w", exchange, err)
	}
	c.metrics.incPublished("exchange")
	return nil
}
