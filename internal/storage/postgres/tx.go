package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// pgTx реализует domain.Tx поверх *sql.Tx.
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) exists(ctx context.Context, op, query string, id int64) (bool, error) {
	var ok bool
	if err := t.tx.QueryRowContext(ctx, query, id).Scan(&ok); err != nil {
		return false, wrapDBError(op, err)
	}
	return ok, nil
}

func (t *pgTx) CustomerExists(ctx context.Context, customerID int64) (bool, error) {
	return t.exists(ctx, "check customer", `SELECT EXISTS (SELECT 1 FROM customers WHERE customer_id = $1)`, customerID)
}

func (t *pgTx) DeliveryTypeExists(ctx context.Context, deliveryTypeID int64) (bool, error) {
	return t.exists(ctx, "check delivery type", `SELECT EXISTS (SELECT 1 FROM delivery_types WHERE delivery_type_id = $1)`, deliveryTypeID)
}

func (t *pgTx) StatusExists(ctx context.Context, statusID int64) (bool, error) {
	return t.exists(ctx, "check status", `SELECT EXISTS (SELECT 1 FROM statuses WHERE status_id = $1)`, statusID)
}

func (t *pgTx) InsertOrder(ctx context.Context, order domain.Order) (int64, error) {
	address, err := json.Marshal(order.Address)
	if err != nil {
		return 0, fmt.Errorf("encode address: %w", err)
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}

	var id int64
	err = t.tx.QueryRowContext(ctx, `
		INSERT INTO orders (customer_id, status_id, delivery_type_id, address, order_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING order_id
	`,
		order.CustomerID, order.StatusID, order.DeliveryTypeID, address, order.CreatedAt, order.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, wrapDBError("insert order", err)
	}
	return id, nil
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, orderID int64) (domain.Order, error) {
	var (
		order   domain.Order
		address []byte
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT order_id, customer_id, status_id, delivery_type_id, address, order_date, updated_at
		FROM orders
		WHERE order_id = $1
		FOR UPDATE
	`, orderID).Scan(
		&order.ID,
		&order.CustomerID,
		&order.StatusID,
		&order.DeliveryTypeID,
		&address,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, wrapDBError("lock order", err)
	}
	if err := json.Unmarshal(address, &order.Address); err != nil {
		return domain.Order{}, fmt.Errorf("decode address of order %d: %w", orderID, err)
	}
	return order, nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, order domain.Order) error {
	address, err := json.Marshal(order.Address)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET customer_id = $2,
		    delivery_type_id = $3,
		    status_id = $4,
		    address = $5,
		    updated_at = $6
		WHERE order_id = $1
	`, order.ID, order.CustomerID, order.DeliveryTypeID, order.StatusID, address, time.Now().UTC())
	if err != nil {
		return wrapDBError("update order", err)
	}
	return requireAffected(res, "update order", domain.ErrOrderNotFound)
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, orderID, statusID int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status_id = $2,
		    updated_at = $3
		WHERE order_id = $1
	`, orderID, statusID, time.Now().UTC())
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrStatusNotFound
		}
		return wrapDBError("update order status", err)
	}
	return requireAffected(res, "update order status", domain.ErrOrderNotFound)
}

func (t *pgTx) DeleteOrder(ctx context.Context, orderID int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM orders WHERE order_id = $1`, orderID)
	if err != nil {
		return wrapDBError("delete order", err)
	}
	return requireAffected(res, "delete order", domain.ErrOrderNotFound)
}

func (t *pgTx) GetLineItem(ctx context.Context, orderID, productID int64) (domain.LineItem, bool, error) {
	item := domain.LineItem{OrderID: orderID, ProductID: productID}
	err := t.tx.QueryRowContext(ctx, `
		SELECT quantity
		FROM order_details
		WHERE order_id = $1 AND product_id = $2
	`, orderID, productID).Scan(&item.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LineItem{}, false, nil
	}
	if err != nil {
		return domain.LineItem{}, false, wrapDBError("get line item", err)
	}
	return item, true, nil
}

func (t *pgTx) ListLineItems(ctx context.Context, orderID int64) ([]domain.LineItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM order_details
		WHERE order_id = $1
		ORDER BY product_id
	`, orderID)
	if err != nil {
		return nil, wrapDBError("list line items", err)
	}
	defer rows.Close()

	return scanLineItems(rows, orderID)
}

func (t *pgTx) InsertLineItem(ctx context.Context, item domain.LineItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_details (order_id, product_id, quantity)
		VALUES ($1, $2, $3)
	`, item.OrderID, item.ProductID, item.Quantity)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.ErrDuplicateProduct
	case isForeignKeyViolation(err):
		return domain.ErrProductNotFound
	case isCheckViolation(err):
		return domain.ErrItemQtyInvalid
	default:
		return wrapDBError("insert line item", err)
	}
}

func (t *pgTx) UpdateLineItemQuantity(ctx context.Context, orderID, productID, quantity int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE order_details
		SET quantity = $3
		WHERE order_id = $1 AND product_id = $2
	`, orderID, productID, quantity)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrItemQtyInvalid
		}
		return wrapDBError("update line item", err)
	}
	return requireAffected(res, "update line item", domain.ErrOrderNotFound)
}

func (t *pgTx) DeleteLineItem(ctx context.Context, orderID, productID int64) (domain.LineItem, bool, error) {
	item := domain.LineItem{OrderID: orderID, ProductID: productID}
	err := t.tx.QueryRowContext(ctx, `
		DELETE FROM order_details
		WHERE order_id = $1 AND product_id = $2
		RETURNING quantity
	`, orderID, productID).Scan(&item.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LineItem{}, false, nil
	}
	if err != nil {
		return domain.LineItem{}, false, wrapDBError("delete line item", err)
	}
	return item, true, nil
}

func (t *pgTx) DeleteLineItems(ctx context.Context, orderID int64) ([]domain.LineItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		DELETE FROM order_details
		WHERE order_id = $1
		RETURNING product_id, quantity
	`, orderID)
	if err != nil {
		return nil, wrapDBError("delete line items", err)
	}
	defer rows.Close()

	items, err := scanLineItems(rows, orderID)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items, nil
}

// ReserveStock списывает товар условным UPDATE: строка меняется, только если остатка хватает.
func (t *pgTx) ReserveStock(ctx context.Context, productID, qty int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - $2
		WHERE product_id = $1 AND quantity >= $2
	`, productID, qty)
	if err != nil {
		return wrapDBError("reserve stock", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve stock rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	exists, err := t.exists(ctx, "check product", `SELECT EXISTS (SELECT 1 FROM products WHERE product_id = $1)`, productID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrProductNotFound
	}
	return domain.ErrInsufficientStock
}

func (t *pgTx) ReleaseStock(ctx context.Context, productID, qty int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2
		WHERE product_id = $1
	`, productID, qty)
	if err != nil {
		return wrapDBError("release stock", err)
	}
	return requireAffected(res, "release stock", domain.ErrProductNotFound)
}

func (t *pgTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$7)
	`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now, now,
	)
	if err != nil {
		return wrapDBError("enqueue outbox message", err)
	}
	return nil
}

func scanLineItems(rows *sql.Rows, orderID int64) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0)
	for rows.Next() {
		item := domain.LineItem{OrderID: orderID}
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate line items", err)
	}
	return items, nil
}

func requireAffected(res sql.Result, op string, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var _ domain.Tx = (*pgTx)(nil)
