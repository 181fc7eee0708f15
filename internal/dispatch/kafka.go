package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConsumerConfig configures the resource-change notification consumer.
type KafkaConsumerConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic carries resource-change notifications.
	Topic string

	// GroupID identifies the consumer group; defaults to
	// "opsgrade-dispatch".
	GroupID string
}

// changeNotification is the wire shape of a resource-change message. Only the
// resource name matters to dispatch; everything else is ignored.
type changeNotification struct {
	ResourceName string `json:"resourceName"`
	DefinitionID string `json:"definitionId,omitempty"`
	ChangeType   string `json:"changeType,omitempty"`
}

// KafkaConsumer reads resource-change notifications and feeds them to the
// dispatcher one at a time. Malformed messages are logged and skipped; the
// consumer never stops on a bad payload.
type KafkaConsumer struct {
	reader     *kafka.Reader
	dispatcher *Dispatcher
}

func NewKafkaConsumer(cfg KafkaConsumerConfig, dispatcher *Dispatcher) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "opsgrade-dispatch"
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: time.Second,
	})
	return &KafkaConsumer{reader: r, dispatcher: dispatcher}, nil
}

// Consume loops until ctx is cancelled, dispatching one trigger event per
// message.
func (c *KafkaConsumer) Consume(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("read change notification: %w", err)
		}

		var note changeNotification
		if err := json.Unmarshal(msg.Value, &note); err != nil {
			log.Printf("skipping malformed change notification at offset %d: %v", msg.Offset, err)
			continue
		}

		summary, err := c.dispatcher.Dispatch(ctx, TriggerEvent{
			ResourceChange: &ResourceChangeEvent{
				ResourceName: note.ResourceName,
				DefinitionID: note.DefinitionID,
			},
		})
		if err != nil {
			log.Printf("dispatch change notification for %q: %v", note.ResourceName, err)
			continue
		}
		if summary.SkippedReason != "" {
			// Unrelated resource; expected and silent beyond debug logging.
			continue
		}
		log.Printf("change notification %q triggered %d assessment(s)", note.ResourceName, summary.Triggered)
	}
}

// Close releases the underlying reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
