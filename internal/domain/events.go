package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// AggregateTypeOrder — тип агрегата для событий заказа в outbox.
const AggregateTypeOrder = "order"

// Типы событий жизненного цикла заказа.
const (
	EventOrderCreated       = "order.created"
	EventOrderUpdated       = "order.updated"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderDeleted       = "order.deleted"
)

// OrderEvent — полезная нагрузка события заказа.
type OrderEvent struct {
	OrderID        int64         `json:"order_id"`
	CustomerID     int64         `json:"customer_id,omitempty"`
	StatusID       int64         `json:"status_id,omitempty"`
	DeliveryTypeID int64         `json:"delivery_type_id,omitempty"`
	Items          []ItemRequest `json:"items,omitempty"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// MarshalJSON нужен, чтобы позиции события сериализовались в snake_case.
func (i ItemRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ProductID int64 `json:"product_id"`
		Quantity  int64 `json:"quantity"`
	}{i.ProductID, i.Quantity})
}

// NewOrderOutboxMessage упаковывает событие заказа в сообщение outbox.
func NewOrderOutboxMessage(eventType string, event OrderEvent) (OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return OutboxMessage{
		AggregateType: AggregateTypeOrder,
		AggregateID:   strconv.FormatInt(event.OrderID, 10),
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
