package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	endOffsetAttempts = 20
	endOffsetBackoff  = 100 * time.Millisecond
)

// KafkaConfig configures sessions against a Kafka-compatible cluster.
type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	Partitions        int32
	ReplicationFactor int16
}

// KafkaDialer returns a Dialer producing franz-go backed sessions. Exchanges and queues
// are topics; the routing key is carried as the record key and a header.
func KafkaDialer(cfg KafkaConfig) Dialer {
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = 1
	}
	return func(ctx context.Context) (Session, error) {
		client, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Brokers...),
			kgo.ClientID(cfg.ClientID),
			kgo.RequiredAcks(kgo.AllISRAcks()),
			kgo.ProducerLinger(0),
		)
		if err != nil {
			return nil, fmt.Errorf("create kafka client: %w", err)
		}
		if err := client.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping kafka: %w", err)
		}
		return &kafkaSession{
			cfg:       cfg,
			client:    client,
			admin:     kadm.NewClient(client),
			consumers: make(map[*kafkaConsumer]struct{}),
		}, nil
	}
}

type kafkaSession struct {
	cfg    KafkaConfig
	client *kgo.Client
	admin  *kadm.Client

	mu        sync.Mutex
	closed    bool
	consumers map[*kafkaConsumer]struct{}
}

func (s *kafkaSession) DeclareTopic(ctx context.Context, name string) error {
	resp, err := s.admin.CreateTopics(ctx, s.cfg.Partitions, s.cfg.ReplicationFactor, nil, name)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", name, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (s *kafkaSession) Publish(ctx context.Context, topic string, msg OutboundMessage) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(msg.RoutingKey),
		Value: msg.Body,
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return err
	}
	return nil
}

func (s *kafkaSession) NewConsumer(ctx context.Context, spec ConsumerSpec) (Consumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(s.cfg.Brokers...),
		kgo.ClientID(s.cfg.ClientID),
		kgo.FetchMaxWait(500 * time.Millisecond),
	}
	if spec.Group != "" {
		opts = append(opts,
			kgo.ConsumeTopics(spec.Topic),
			kgo.ConsumerGroup(spec.Group),
			kgo.DisableAutoCommit(),
			kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		)
	} else {
		// An exclusive binding starts at the end offsets as of now, so everything
		// published after NewConsumer returns is delivered.
		offsets, err := s.endOffsets(ctx, spec.Topic)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.ConsumePartitions(offsets))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	c := &kafkaConsumer{session: s, spec: spec, client: client}
	s.consumers[c] = struct{}{}
	return c, nil
}

// endOffsets retries briefly because a freshly created topic may not report its
// partitions yet.
func (s *kafkaSession) endOffsets(ctx context.Context, topic string) (map[string]map[int32]kgo.Offset, error) {
	var lastErr error
	for attempt := 0; attempt < endOffsetAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(endOffsetBackoff):
			}
		}
		listed, err := s.admin.ListEndOffsets(ctx, topic)
		if err == nil {
			err = listed.Error()
		}
		if err != nil {
			lastErr = err
			continue
		}
		offsets := listed.KOffsets()
		if len(offsets[topic]) == 0 {
			lastErr = errors.New("no partitions")
			continue
		}
		return offsets, nil
	}
	return nil, fmt.Errorf("list end offsets of %s: %w", topic, lastErr)
}

func (s *kafkaSession) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *kafkaSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	consumers := make([]*kafkaConsumer, 0, len(s.consumers))
	for c := range s.consumers {
		consumers = append(consumers, c)
	}
	s.consumers = nil
	s.mu.Unlock()

	for _, c := range consumers {
		c.closeClient()
	}
	s.client.Close()
	return nil
}

type kafkaConsumer struct {
	session *kafkaSession
	spec    ConsumerSpec
	client  *kgo.Client
	once    sync.Once
}

func (c *kafkaConsumer) Next(ctx context.Context) (Delivery, error) {
	for {
		fetches := c.client.PollRecords(ctx, 1)
		if fetches.IsClientClosed() {
			return Delivery{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Delivery{}, err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			fe := errs[0]
			return Delivery{}, fmt.Errorf("fetch %s[%d]: %w", fe.Topic, fe.Partition, fe.Err)
		}
		records := fetches.Records()
		if len(records) == 0 {
			continue
		}
		return toDelivery(records[0]), nil
	}
}

func (c *kafkaConsumer) Ack(ctx context.Context, d Delivery) error {
	if c.spec.Group == "" {
		return nil
	}
	record, ok := d.tag.(*kgo.Record)
	if !ok {
		return errors.New("delivery does not belong to this consumer")
	}
	if err := c.client.CommitRecords(ctx, record); err != nil {
		return fmt.Errorf("commit offset: %w", err)
	}
	return nil
}

func (c *kafkaConsumer) Close() error {
	c.session.mu.Lock()
	if c.session.consumers != nil {
		delete(c.session.consumers, c)
	}
	c.session.mu.Unlock()
	c.closeClient()
	return nil
}

func (c *kafkaConsumer) closeClient() {
	c.once.Do(c.client.Close)
}

func toDelivery(r *kgo.Record) Delivery {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	routingKey, ok := headers[headerRoutingKey]
	if !ok {
		routingKey = string(r.Key)
	}
	return Delivery{
		Topic:      r.Topic,
		RoutingKey: routingKey,
		Body:       r.Value,
		Headers:    headers,
		Timestamp:  r.Timestamp,
		tag:        r,
	}
}
