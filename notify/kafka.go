package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

// messageWriter is the part of *kafka.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes events as JSON to a topic, keyed by user ID so one
// user's events stay ordered within a partition.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaNotifier creates a producer for the given brokers and topic.
func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaNotifier(w, topic, logger)
}

func newKafkaNotifier(w messageWriter, topic string, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: w, topic: topic, logger: logger.Named("notify.kafka")}
}

func (n *KafkaNotifier) Notify(ctx context.Context, e leave.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := kafka.Message{
		Topic: n.topic,
		Key:   []byte(e.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "request_id", Value: []byte(e.RequestID)},
		},
		Time: e.OccurredAt,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}

	n.logger.Debug("event published", zap.String("type", string(e.Type)), zap.String("topic", n.topic))
	return nil
}

// Close flushes pending messages.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
