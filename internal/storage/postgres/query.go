package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// orderViewSelect собирает заказ, справочники и корзину одним запросом.
// Для заказа без позиций агрегаты дают NULL: total_price остаётся NULL, корзина пуста.
const orderViewSelect = `
SELECT o.order_id,
       o.customer_id,
       c.login,
       s.description,
       o.address,
       d.name,
       o.order_date,
       t.total_price,
       COALESCE(t.cart, '[]'::json)
FROM orders o
JOIN customers c ON c.customer_id = o.customer_id
JOIN statuses s ON s.status_id = o.status_id
JOIN delivery_types d ON d.delivery_type_id = o.delivery_type_id
LEFT JOIN LATERAL (
    SELECT SUM(od.quantity * p.price)::BIGINT AS total_price,
           json_agg(json_build_object(
               'id_product', p.product_id,
               'name', p.name,
               'quantity', od.quantity,
               'price', p.price
           ) ORDER BY p.product_id) AS cart
    FROM order_details od
    JOIN products p ON p.product_id = od.product_id
    WHERE od.order_id = o.order_id
) t ON TRUE`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrderView(row rowScanner) (domain.OrderView, error) {
	var (
		view    domain.OrderView
		address []byte
		total   sql.NullInt64
		cart    []byte
	)
	if err := row.Scan(
		&view.ID,
		&view.CustomerID,
		&view.CustomerLogin,
		&view.Status,
		&address,
		&view.DeliveryType,
		&view.CreateOrderDate,
		&total,
		&cart,
	); err != nil {
		return domain.OrderView{}, err
	}

	if err := json.Unmarshal(address, &view.Address); err != nil {
		return domain.OrderView{}, fmt.Errorf("decode address of order %d: %w", view.ID, err)
	}
	if err := json.Unmarshal(cart, &view.Cart); err != nil {
		return domain.OrderView{}, fmt.Errorf("decode cart of order %d: %w", view.ID, err)
	}
	if view.Cart == nil {
		view.Cart = []domain.CartLine{}
	}
	if total.Valid {
		v := total.Int64
		view.TotalPrice = &v
	}
	view.CreateOrderDate = view.CreateOrderDate.UTC()
	return view, nil
}

// buildListQuery строит выборку списка заказов по нормализованному фильтру.
func buildListQuery(filter domain.OrderFilter) (string, []any) {
	var (
		sb    strings.Builder
		args  []any
		where []string
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CustomerLogin != "" {
		where = append(where, "c.login = "+arg(filter.CustomerLogin))
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "s.description = ANY("+arg(filter.Statuses)+")")
	}
	if filter.ProductName != "" {
		where = append(where, `EXISTS (
    SELECT 1
    FROM order_details fd
    JOIN products fp ON fp.product_id = fd.product_id
    WHERE fd.order_id = o.order_id
      AND fp.name ILIKE `+arg("%"+escapeLike(filter.ProductName)+"%")+` ESCAPE '\'
)`)
	}

	sb.WriteString(orderViewSelect)
	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, "\n  AND "))
	}

	order := make([]string, 0, 3)
	switch filter.SortByDate {
	case domain.SortAsc:
		order = append(order, "o.order_date ASC")
	case domain.SortDesc:
		order = append(order, "o.order_date DESC")
	}
	switch filter.SortByPrice {
	case domain.SortAsc:
		order = append(order, "t.total_price ASC NULLS FIRST")
	case domain.SortDesc:
		order = append(order, "t.total_price DESC NULLS LAST")
	}
	order = append(order, "o.order_id ASC")

	sb.WriteString("\nORDER BY ")
	sb.WriteString(strings.Join(order, ", "))
	sb.WriteString("\nLIMIT " + arg(filter.PageSize) + " OFFSET " + arg(filter.Offset()))

	return sb.String(), args
}

// escapeLike экранирует спецсимволы шаблона LIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
