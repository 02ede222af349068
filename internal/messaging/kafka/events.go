package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "oms.order.events"
	TopicDeadLetterQueue = "oms.order.dlq"
)

// Kafka headers, которые сопровождают каждое сообщение.
const (
	HeaderOutboxID      = "x-outbox-id"
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
)

// Envelope описывает формат сообщения в топике событий заказа.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение для публикации.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
}

// ParseEnvelope разбирает значение сообщения из топика событий.
func ParseEnvelope(value []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.EventType == "" {
		return Envelope{}, fmt.Errorf("envelope %q has no event type", env.ID)
	}
	return env, nil
}

// ParseOrderEvent достаёт событие заказа из конверта.
func ParseOrderEvent(env Envelope) (domain.OrderEvent, error) {
	if env.AggregateType != domain.AggregateTypeOrder {
		return domain.OrderEvent{}, fmt.Errorf("unexpected aggregate type %q", env.AggregateType)
	}
	var event domain.OrderEvent
	if err := json.Unmarshal(env.Payload, &event); err != nil {
		return domain.OrderEvent{}, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return event, nil
}
