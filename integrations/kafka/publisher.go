package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"lineledger/core/types"
)

// Writer is the subset of *kafka.Writer used by the publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher streams audit records to a topic keyed by line so that every
// consumer sees a line's records in order.
type Publisher struct {
	writer  Writer
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher builds a publisher writing to brokers.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	return NewPublisherWithWriter(&kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		RequiredAcks: kafkago.RequireAll,
		Balancer:     &kafkago.Hash{},
	}, topic, logger), nil
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(writer Writer, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{writer: writer, topic: topic, timeout: 10 * time.Second, logger: logger}
}

// Key is the partition key of evt: its line, else the emitting contract.
func Key(evt *types.Event) string {
	if line := evt.Attr("line"); line != "" {
		return line
	}
	return types.AddressKey(evt.Contract)
}

// Publish writes evt synchronously.
func (p *Publisher) Publish(ctx context.Context, evt *types.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("kafka: encode %s: %w", evt.ID, err)
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Topic: p.topic,
		Key:   []byte(Key(evt)),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(evt.Type)},
			{Key: "id", Value: []byte(evt.ID)},
		},
		Time: time.Unix(int64(evt.Timestamp), 0).UTC(),
	})
}

// Emit implements events.Emitter.
func (p *Publisher) Emit(evt *types.Event) {
	if evt == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.Publish(ctx, evt); err != nil {
		p.logger.Error("kafka: publish failed",
			slog.String("id", evt.ID),
			slog.String("topic", p.topic),
			slog.Any("error", err))
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
