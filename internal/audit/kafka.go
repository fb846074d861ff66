package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"fieldline/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the JSON document published for each audit entry.
type Event struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// KafkaPublisher mirrors audit entries to a Kafka topic, keyed by actor.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher builds an async writer; delivery errors are logged.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("audit: kafka delivery failed", "error", err, "messages", len(messages))
			}
		},
	}
	return &KafkaPublisher{writer: writer}
}

func newKafkaPublisherWithWriter(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, entry domain.AuditEntry) error {
	ts, err := time.Parse(time.RFC3339, entry.CreatedAt)
	if err != nil {
		ts = time.Now().UTC()
	}
	value, err := json.Marshal(Event{
		ID:        entry.ID,
		Action:    string(entry.Action),
		Details:   entry.Details,
		UserID:    entry.UserID,
		Timestamp: ts,
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.UserID),
		Value: value,
		Time:  ts,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
