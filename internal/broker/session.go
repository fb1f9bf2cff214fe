package broker

import "context"

// Dialer opens a new Session. It is called by Connect and by every reconnect attempt.
type Dialer func(ctx context.Context) (Session, error)

// Session is one live link to the bus, the equivalent of a connection plus channel.
// Implementations must be safe for concurrent use.
type Session interface {
	// DeclareTopic creates a durable topic if it does not exist.
	DeclareTopic(ctx context.Context, name string) error
	// Publish writes a persistent message to a topic.
	Publish(ctx context.Context, topic string, msg OutboundMessage) error
	// NewConsumer attaches a consumer. An empty Group means an exclusive consumer that
	// only sees messages published after it attached.
	NewConsumer(ctx context.Context, spec ConsumerSpec) (Consumer, error)
	// Ping verifies the link is alive.
	Ping(ctx context.Context) error
	// Close tears the session down, including consumers it created.
	Close() error
}

// ConsumerSpec selects what a consumer reads.
type ConsumerSpec struct {
	Topic string
	Group string
}

// Consumer yields deliveries one at a time; the next delivery is only fetched after
// the previous one was acknowledged.
type Consumer interface {
	Next(ctx context.Context) (Delivery, error)
	Ack(ctx context.Context, d Delivery) error
	Close() error
}
