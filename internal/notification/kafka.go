package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes ledger events to a single topic.
type KafkaNotifier struct {
	writer      messageWriter
	maxAttempts int
	baseDelay   time.Duration
}

type envelope struct {
	Kind       string    `json:"kind"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// NewKafkaNotifier builds a notifier writing to topic on the given brokers.
// Messages are hashed by key so a wallet's events land on one partition.
// The writer makes a single attempt per call; Send owns the retry policy.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return newKafkaNotifier(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		MaxAttempts:            1,
	})
}

func newKafkaNotifier(w messageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: w, maxAttempts: 3, baseDelay: 100 * time.Millisecond}
}

// Send encodes the message and writes it, retrying with exponential backoff.
func (n *KafkaNotifier) Send(ctx context.Context, message Message) error {
	data, err := json.Marshal(envelope{
		Kind:       message.Kind,
		Key:        message.Key,
		OccurredAt: time.Now().UTC(),
		Payload:    message.Payload,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", message.Kind, err)
	}

	msg := kafka.Message{
		Key:     []byte(message.Key),
		Value:   data,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(message.Kind)}},
	}

	var lastErr error
	delay := n.baseDelay
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		if lastErr = n.writer.WriteMessages(ctx, msg); lastErr == nil {
			return nil
		}
		if attempt == n.maxAttempts {
			break
		}
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return fmt.Errorf("publish %s: %w", message.Kind, ctx.Err())
		}
	}
	return fmt.Errorf("publish %s after %d attempts: %w", message.Kind, n.maxAttempts, lastErr)
}

// Close flushes pending writes and releases broker connections.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
