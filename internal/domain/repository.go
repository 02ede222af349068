package domain

import "context"

// Store описывает хранилище заказов и справочников.
type Store interface {
	// WithinTx выполняет fn в одной транзакции: любая ошибка fn откатывает все изменения.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// GetOrderView возвращает проекцию заказа или ErrOrderNotFound.
	GetOrderView(ctx context.Context, orderID int64) (OrderView, error)
	// ListOrderViews возвращает страницу проекций по нормализованному фильтру.
	ListOrderViews(ctx context.Context, filter OrderFilter) ([]OrderView, error)
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}

// Tx перечисляет операции, доступные внутри транзакции.
type Tx interface {
	CustomerExists(ctx context.Context, customerID int64) (bool, error)
	DeliveryTypeExists(ctx context.Context, deliveryTypeID int64) (bool, error)
	StatusExists(ctx context.Context, statusID int64) (bool, error)

	// InsertOrder сохраняет заказ и возвращает присвоенный идентификатор.
	InsertOrder(ctx context.Context, order Order) (int64, error)
	// GetOrderForUpdate читает заказ и блокирует его до конца транзакции.
	GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error)
	// UpdateOrder перезаписывает клиента, тип доставки, статус и адрес заказа.
	UpdateOrder(ctx context.Context, order Order) error
	// UpdateOrderStatus меняет только статус; ErrOrderNotFound, если заказа нет.
	UpdateOrderStatus(ctx context.Context, orderID, statusID int64) error
	// DeleteOrder удаляет строку заказа; ErrOrderNotFound, если заказа нет.
	DeleteOrder(ctx context.Context, orderID int64) error

	// GetLineItem возвращает позицию заказа; found=false, если её нет.
	GetLineItem(ctx context.Context, orderID, productID int64) (item LineItem, found bool, err error)
	ListLineItems(ctx context.Context, orderID int64) ([]LineItem, error)
	InsertLineItem(ctx context.Context, item LineItem) error
	UpdateLineItemQuantity(ctx context.Context, orderID, productID, quantity int64) error
	// DeleteLineItem удаляет позицию конкретного заказа и возвращает удалённую запись.
	DeleteLineItem(ctx context.Context, orderID, productID int64) (item LineItem, found bool, err error)
	// DeleteLineItems удаляет все позиции заказа и возвращает их.
	DeleteLineItems(ctx context.Context, orderID int64) ([]LineItem, error)

	// ReserveStock атомарно уменьшает остаток товара на qty.
	// Возвращает ErrProductNotFound или ErrInsufficientStock, остаток при этом не меняется.
	ReserveStock(ctx context.Context, productID, qty int64) error
	// ReleaseStock возвращает qty единиц товара на склад.
	ReleaseStock(ctx context.Context, productID, qty int64) error

	// EnqueueOutbox сохраняет событие в outbox в рамках той же транзакции.
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) error
}
