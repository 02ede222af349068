package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// memTx работает над приватной копией состояния; Store публикует её после успешного fn.
type memTx struct {
	st      *state
	now     time.Time
	pending []domain.OutboxMessage
}

func (t *memTx) CustomerExists(_ context.Context, customerID int64) (bool, error) {
	_, ok := t.st.customers[customerID]
	return ok, nil
}

func (t *memTx) DeliveryTypeExists(_ context.Context, deliveryTypeID int64) (bool, error) {
	_, ok := t.st.deliveryTypes[deliveryTypeID]
	return ok, nil
}

func (t *memTx) StatusExists(_ context.Context, statusID int64) (bool, error) {
	_, ok := t.st.statuses[statusID]
	return ok, nil
}

func (t *memTx) InsertOrder(_ context.Context, order domain.Order) (int64, error) {
	order.ID = t.st.nextOrderID
	t.st.nextOrderID++
	if order.CreatedAt.IsZero() {
		order.CreatedAt = t.now
	}
	order.UpdatedAt = t.now
	t.st.orders[order.ID] = order
	return order.ID, nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, orderID int64) (domain.Order, error) {
	order, ok := t.st.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (t *memTx) UpdateOrder(_ context.Context, order domain.Order) error {
	current, ok := t.st.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	current.CustomerID = order.CustomerID
	current.DeliveryTypeID = order.DeliveryTypeID
	current.StatusID = order.StatusID
	current.Address = order.Address
	current.UpdatedAt = t.now
	t.st.orders[order.ID] = current
	return nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, orderID, statusID int64) error {
	current, ok := t.st.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	current.StatusID = statusID
	current.UpdatedAt = t.now
	t.st.orders[orderID] = current
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, orderID int64) error {
	if _, ok := t.st.orders[orderID]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(t.st.orders, orderID)
	delete(t.st.items, orderID)
	return nil
}

func (t *memTx) GetLineItem(_ context.Context, orderID, productID int64) (domain.LineItem, bool, error) {
	qty, ok := t.st.items[orderID][productID]
	if !ok {
		return domain.LineItem{}, false, nil
	}
	return domain.LineItem{OrderID: orderID, ProductID: productID, Quantity: qty}, true, nil
}

func (t *memTx) ListLineItems(_ context.Context, orderID int64) ([]domain.LineItem, error) {
	lines := t.st.items[orderID]
	result := make([]domain.LineItem, 0, len(lines))
	for productID, qty := range lines {
		result = append(result, domain.LineItem{OrderID: orderID, ProductID: productID, Quantity: qty})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProductID < result[j].ProductID })
	return result, nil
}

func (t *memTx) InsertLineItem(_ context.Context, item domain.LineItem) error {
	if _, ok := t.st.orders[item.OrderID]; !ok {
		return domain.ErrOrderNotFound
	}
	if _, ok := t.st.products[item.ProductID]; !ok {
		return domain.ErrProductNotFound
	}
	if item.Quantity <= 0 {
		return domain.ErrItemQtyInvalid
	}
	lines, ok := t.st.items[item.OrderID]
	if !ok {
		lines = make(map[int64]int64)
		t.st.items[item.OrderID] = lines
	}
	if _, exists := lines[item.ProductID]; exists {
		return domain.ErrDuplicateProduct
	}
	lines[item.ProductID] = item.Quantity
	return nil
}

func (t *memTx) UpdateLineItemQuantity(_ context.Context, orderID, productID, quantity int64) error {
	lines := t.st.items[orderID]
	if _, ok := lines[productID]; !ok {
		return domain.ErrOrderNotFound
	}
	if quantity <= 0 {
		return domain.ErrItemQtyInvalid
	}
	lines[productID] = quantity
	return nil
}

func (t *memTx) DeleteLineItem(_ context.Context, orderID, productID int64) (domain.LineItem, bool, error) {
	lines := t.st.items[orderID]
	qty, ok := lines[productID]
	if !ok {
		return domain.LineItem{}, false, nil
	}
	delete(lines, productID)
	return domain.LineItem{OrderID: orderID, ProductID: productID, Quantity: qty}, true, nil
}

func (t *memTx) DeleteLineItems(ctx context.Context, orderID int64) ([]domain.LineItem, error) {
	removed, err := t.ListLineItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	delete(t.st.items, orderID)
	return removed, nil
}

func (t *memTx) ReserveStock(_ context.Context, productID, qty int64) error {
	product, ok := t.st.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if product.Quantity < qty {
		return domain.ErrInsufficientStock
	}
	product.Quantity -= qty
	t.st.products[productID] = product
	return nil
}

func (t *memTx) ReleaseStock(_ context.Context, productID, qty int64) error {
	product, ok := t.st.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Quantity += qty
	t.st.products[productID] = product
	return nil
}

func (t *memTx) EnqueueOutbox(_ context.Context, msg domain.OutboxMessage) error {
	t.pending = append(t.pending, msg)
	return nil
}

var _ domain.Tx = (*memTx)(nil)
