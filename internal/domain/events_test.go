package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

func TestNewOrderOutboxMessage(t *testing.T) {
	occurred := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msg, err := domain.NewOrderOutboxMessage(domain.EventOrderCreated, domain.OrderEvent{
		OrderID:    42,
		CustomerID: 7,
		StatusID:   domain.StatusCart,
		Items:      []domain.ItemRequest{{ProductID: 3, Quantity: 2}},
		OccurredAt: occurred,
	})
	require.NoError(t, err)
	require.Equal(t, domain.AggregateTypeOrder, msg.AggregateType)
	require.Equal(t, "42", msg.AggregateID)
	require.Equal(t, domain.EventOrderCreated, msg.EventType)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	require.EqualValues(t, 42, decoded["order_id"])
	items, ok := decoded["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	require.EqualValues(t, 3, items[0].(map[string]any)["product_id"])
}
