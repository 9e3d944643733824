package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	domoutbox "github.com/Zhima-Mochi/payflow/internal/domain/outbox"
	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
	"github.com/Zhima-Mochi/payflow/internal/observability"
)

const componentPublisher = "kafka_publisher"

// Publisher mirrors payment events to a Kafka topic for downstream consumers
// (ledger, support tooling). Keyed by order id so per-order ordering holds.
type Publisher struct {
	writer *kafka.Writer
	log    observability.Logger
}

func NewPublisher(brokers []string, topic string, logger observability.Logger) *Publisher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
		log: logger.With(observability.F("component", componentPublisher)),
	}
}

type envelope struct {
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func (p *Publisher) Publish(ctx context.Context, e domoutbox.Event) error {
	key, payload := keyAndPayload(e)

	raw, err := json.Marshal(envelope{
		Event:      e.EventName(),
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("kafka publisher: encode %s: %w", e.EventName(), err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: raw,
	}); err != nil {
		return fmt.Errorf("kafka publisher: write %s: %w", e.EventName(), err)
	}

	p.log.Debug("event_published", observability.F("event", e.EventName()))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func keyAndPayload(e domoutbox.Event) (string, any) {
	switch evt := e.(type) {
	case domain.StateChangedEvent:
		return evt.OrderID, evt
	case domain.CompletedEvent:
		return evt.OrderID, evt
	default:
		return e.EventName(), e
	}
}
