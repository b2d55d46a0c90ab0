package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"signalcraft-go/internal/config"
)

// KafkaBroadcaster implements Broadcaster on a Kafka topic. Messages are
// keyed by workspace ID so each workspace's event stream stays ordered.
type KafkaBroadcaster struct {
	writer *kafka.Writer
}

// NewKafkaBroadcaster creates a Kafka-backed broadcaster.
func NewKafkaBroadcaster(cfg *config.KafkaConfig) *KafkaBroadcaster {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // Use key-based partitioning
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaBroadcaster{writer: writer}
}

// envelope is the wire format for broadcast events.
type envelope struct {
	WorkspaceID string    `json:"workspace_id"`
	Event       string    `json:"event"`
	Payload     any       `json:"payload"`
	EmittedAt   time.Time `json:"emitted_at"`
}

// Emit publishes the event to the topic.
func (b *KafkaBroadcaster) Emit(ctx context.Context, workspaceID, event string, payload any) error {
	value, err := json.Marshal(envelope{
		WorkspaceID: workspaceID,
		Event:       event,
		Payload:     payload,
		EmittedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(workspaceID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event)},
		},
	}

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write broadcast event to kafka: %w", err)
	}
	return nil
}

// Close closes the Kafka writer.
func (b *KafkaBroadcaster) Close() error {
	if b.writer != nil {
		return b.writer.Close()
	}
	return nil
}
