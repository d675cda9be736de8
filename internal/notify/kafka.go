package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// DefaultEscalationTopic is the topic escalation events are written to.
const DefaultEscalationTopic = "support.escalations"

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter returns a writer for the escalation topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultEscalationTopic
	}
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
}

// KafkaNotifier streams notices to Kafka keyed by conversation so events
// for one conversation stay ordered within a partition.
type KafkaNotifier struct {
	writer MessageWriter
}

// NewKafkaNotifier creates a Kafka notifier.
func NewKafkaNotifier(w MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: w}
}

// SendEscalationNotice implements Notifier.
func (k *KafkaNotifier) SendEscalationNotice(ctx context.Context, n Notice) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.Key()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(n.Summary.Reason)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}
