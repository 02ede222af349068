package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
)

// Service управляет агрегатом заказа: строкой заказа, его позициями и складскими остатками.
// Каждая изменяющая операция выполняется в одной транзакции хранилища.
type Service struct {
	store   domain.Store
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	retry   RetryConfig
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает Prometheus-метрики операций.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRetryConfig задаёт политику повторов транзакций.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithClock подменяет источник времени событий.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис заказов поверх хранилища.
func NewService(store domain.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.New().WithField("component", "orders"),
		retry:  DefaultRetryConfig(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder создаёт заказ со статусом «корзина» и резервирует товар под каждую позицию.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (int64, error) {
	finish := s.observe("create")

	orderID, err := s.createOrder(ctx, in)
	finish(err)
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":    orderID,
		"customer_id": in.CustomerID,
		"items":       len(in.Items),
	}).Info("order created")
	return orderID, nil
}

func (s *Service) createOrder(ctx context.Context, in CreateOrderInput) (int64, error) {
	if err := validateCreate(in); err != nil {
		return 0, err
	}
	items := domain.MergeItems(in.Items)

	var (
		orderID  int64
		reserved int64
	)
	err := s.withRetry(ctx, "create", func(ctx context.Context) error {
		reserved = 0
		return s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			if err := ensureReferences(ctx, tx, in.CustomerID, in.DeliveryTypeID); err != nil {
				return err
			}

			now := s.now()
			id, err := tx.InsertOrder(ctx, domain.Order{
				CustomerID:     in.CustomerID,
				StatusID:       domain.StatusCart,
				DeliveryTypeID: in.DeliveryTypeID,
				Address:        *in.Address,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
			if err != nil {
				return fmt.Errorf("insert order: %w", err)
			}

			for _, item := range items {
				if err := tx.ReserveStock(ctx, item.ProductID, item.Quantity); err != nil {
					return stockError(item.ProductID, err)
				}
				reserved += item.Quantity
				if err := tx.InsertLineItem(ctx, domain.LineItem{OrderID: id, ProductID: item.ProductID, Quantity: item.Quantity}); err != nil {
					return fmt.Errorf("insert line item (product_id %d): %w", item.ProductID, err)
				}
			}

			if err := enqueue(ctx, tx, domain.EventOrderCreated, domain.OrderEvent{
				OrderID:        id,
				CustomerID:     in.CustomerID,
				StatusID:       domain.StatusCart,
				DeliveryTypeID: in.DeliveryTypeID,
				Items:          items,
				OccurredAt:     now,
			}); err != nil {
				return err
			}

			orderID = id
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.RecordStockReserved(reserved)
	}
	return orderID, nil
}

// PatchOrder обновляет заказ. Если в запросе есть статус или не хватает любого из полей
// полного обновления, меняется только статус; иначе перезаписываются поля заказа и сверяются позиции.
func (s *Service) PatchOrder(ctx context.Context, in PatchOrderInput) (PatchMode, error) {
	if in.statusOnly() {
		finish := s.observe("patch_status")
		err := s.patchStatus(ctx, in)
		finish(err)
		return PatchModeStatus, err
	}

	finish := s.observe("patch_full")
	err := s.patchFull(ctx, in)
	finish(err)
	return PatchModeFull, err
}

func (s *Service) patchStatus(ctx context.Context, in PatchOrderInput) error {
	if err := validateStatusPatch(in); err != nil {
		return err
	}
	if ignored := in.ignoredFields(); len(ignored) > 0 {
		s.logger.WithFields(log.Fields{
			"order_id": in.OrderID,
			"ignored":  ignored,
		}).Warn("status update ignores other fields of the request")
	}

	statusID := *in.Status
	err := s.withRetry(ctx, "patch_status", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			order, err := tx.GetOrderForUpdate(ctx, in.OrderID)
			if err != nil {
				return err
			}

			exists, err := tx.StatusExists(ctx, statusID)
			if err != nil {
				return fmt.Errorf("check status: %w", err)
			}
			if !exists {
				return domain.ErrStatusNotFound
			}

			if err := tx.UpdateOrderStatus(ctx, in.OrderID, statusID); err != nil {
				return err
			}

			return enqueue(ctx, tx, domain.EventOrderStatusChanged, domain.OrderEvent{
				OrderID:        in.OrderID,
				CustomerID:     order.CustomerID,
				StatusID:       statusID,
				DeliveryTypeID: order.DeliveryTypeID,
				OccurredAt:     s.now(),
			})
		})
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(log.Fields{
		"order_id":  in.OrderID,
		"status_id": statusID,
	}).Info("order status updated")
	return nil
}

func (s *Service) patchFull(ctx context.Context, in PatchOrderInput) error {
	if err := validateFullPatch(in); err != nil {
		return err
	}

	items := append([]domain.ItemRequest(nil), in.Items...)
	domain.SortItems(items)

	var reserved, released int64
	err := s.withRetry(ctx, "patch_full", func(ctx context.Context) error {
		reserved, released = 0, 0
		return s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			order, err := tx.GetOrderForUpdate(ctx, in.OrderID)
			if err != nil {
				return err
			}
			if err := ensureReferences(ctx, tx, *in.CustomerID, *in.DeliveryTypeID); err != nil {
				return err
			}

			order.CustomerID = *in.CustomerID
			order.DeliveryTypeID = *in.DeliveryTypeID
			order.Address = *in.Address
			if err := tx.UpdateOrder(ctx, order); err != nil {
				return fmt.Errorf("update order: %w", err)
			}

			// Удаления выполняются до резервирования новых позиций.
			for _, item := range items {
				if item.Quantity != 0 {
					continue
				}
				removed, found, err := tx.DeleteLineItem(ctx, order.ID, item.ProductID)
				if err != nil {
					return fmt.Errorf("delete line item (product_id %d): %w", item.ProductID, err)
				}
				if !found {
					continue
				}
				if err := tx.ReleaseStock(ctx, removed.ProductID, removed.Quantity); err != nil {
					return stockError(removed.ProductID, err)
				}
				released += removed.Quantity
			}

			for _, item := range items {
				if item.Quantity == 0 {
					continue
				}
				r, rel, err := upsertLineItem(ctx, tx, order.ID, item)
				if err != nil {
					return err
				}
				reserved += r
				released += rel
			}

			lines, err := tx.ListLineItems(ctx, order.ID)
			if err != nil {
				return fmt.Errorf("list line items: %w", err)
			}
			cart := make([]domain.ItemRequest, 0, len(lines))
			for _, line := range lines {
				cart = append(cart, domain.ItemRequest{ProductID: line.ProductID, Quantity: line.Quantity})
			}

			return enqueue(ctx, tx, domain.EventOrderUpdated, domain.OrderEvent{
				OrderID:        order.ID,
				CustomerID:     order.CustomerID,
				StatusID:       order.StatusID,
				DeliveryTypeID: order.DeliveryTypeID,
				Items:          cart,
				OccurredAt:     s.now(),
			})
		})
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordStockReserved(reserved)
		s.metrics.RecordStockReleased(released)
	}
	s.logger.WithFields(log.Fields{
		"order_id": in.OrderID,
		"items":    len(items),
	}).Info("order updated")
	return nil
}

// upsertLineItem приводит позицию к требуемому количеству, резервируя или возвращая только разницу.
func upsertLineItem(ctx context.Context, tx domain.Tx, orderID int64, item domain.ItemRequest) (reserved, released int64, err error) {
	existing, found, err := tx.GetLineItem(ctx, orderID, item.ProductID)
	if err != nil {
		return 0, 0, fmt.Errorf("get line item (product_id %d): %w", item.ProductID, err)
	}

	if !found {
		if err := tx.ReserveStock(ctx, item.ProductID, item.Quantity); err != nil {
			return 0, 0, stockError(item.ProductID, err)
		}
		if err := tx.InsertLineItem(ctx, domain.LineItem{OrderID: orderID, ProductID: item.ProductID, Quantity: item.Quantity}); err != nil {
			return 0, 0, fmt.Errorf("insert line item (product_id %d): %w", item.ProductID, err)
		}
		return item.Quantity, 0, nil
	}

	delta := item.Quantity - existing.Quantity
	switch {
	case delta == 0:
		return 0, 0, nil
	case delta > 0:
		if err := tx.ReserveStock(ctx, item.ProductID, delta); err != nil {
			return 0, 0, stockError(item.ProductID, err)
		}
		reserved = delta
	default:
		if err := tx.ReleaseStock(ctx, item.ProductID, -delta); err != nil {
			return 0, 0, stockError(item.ProductID, err)
		}
		released = -delta
	}

	if err := tx.UpdateLineItemQuantity(ctx, orderID, item.ProductID, item.Quantity); err != nil {
		return 0, 0, fmt.Errorf("update line item (product_id %d): %w", item.ProductID, err)
	}
	return reserved, released, nil
}

// GetOrders возвращает проекции заказов. Запрос по id отдаёт не больше одного элемента,
// отсутствующий заказ даёт пустой список.
func (s *Service) GetOrders(ctx context.Context, q OrderQuery) ([]domain.OrderView, error) {
	finish := s.observe("query")

	views, err := s.getOrders(ctx, q)
	finish(err)
	return views, err
}

func (s *Service) getOrders(ctx context.Context, q OrderQuery) ([]domain.OrderView, error) {
	if q.OrderID != nil {
		if *q.OrderID <= 0 {
			return nil, domain.ErrInvalidOrderID
		}
		view, err := s.store.GetOrderView(ctx, *q.OrderID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			return []domain.OrderView{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get order view: %w", err)
		}
		return []domain.OrderView{view}, nil
	}

	if err := validateFilter(q.Filter); err != nil {
		return nil, err
	}
	views, err := s.store.ListOrderViews(ctx, q.Filter.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list order views: %w", err)
	}
	if views == nil {
		views = []domain.OrderView{}
	}
	return views, nil
}

// DeleteOrder удаляет заказ вместе с позициями и возвращает их количество на склад.
func (s *Service) DeleteOrder(ctx context.Context, orderID int64) error {
	finish := s.observe("delete")

	err := s.deleteOrder(ctx, orderID)
	finish(err)
	if err != nil {
		return err
	}

	s.logger.WithField("order_id", orderID).Info("order deleted")
	return nil
}

func (s *Service) deleteOrder(ctx context.Context, orderID int64) error {
	if orderID <= 0 {
		return domain.ErrInvalidOrderID
	}

	var released int64
	err := s.withRetry(ctx, "delete", func(ctx context.Context) error {
		released = 0
		return s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			order, err := tx.GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return err
			}

			removed, err := tx.DeleteLineItems(ctx, orderID)
			if err != nil {
				return fmt.Errorf("delete line items: %w", err)
			}
			items := make([]domain.ItemRequest, 0, len(removed))
			for _, line := range removed {
				if err := tx.ReleaseStock(ctx, line.ProductID, line.Quantity); err != nil {
					return stockError(line.ProductID, err)
				}
				released += line.Quantity
				items = append(items, domain.ItemRequest{ProductID: line.ProductID, Quantity: line.Quantity})
			}

			if err := tx.DeleteOrder(ctx, orderID); err != nil {
				return err
			}

			return enqueue(ctx, tx, domain.EventOrderDeleted, domain.OrderEvent{
				OrderID:        orderID,
				CustomerID:     order.CustomerID,
				StatusID:       order.StatusID,
				DeliveryTypeID: order.DeliveryTypeID,
				Items:          items,
				OccurredAt:     s.now(),
			})
		})
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordStockReleased(released)
	}
	return nil
}

func ensureReferences(ctx context.Context, tx domain.Tx, customerID, deliveryTypeID int64) error {
	exists, err := tx.CustomerExists(ctx, customerID)
	if err != nil {
		return fmt.Errorf("check customer: %w", err)
	}
	if !exists {
		return domain.ErrCustomerNotFound
	}

	exists, err = tx.DeliveryTypeExists(ctx, deliveryTypeID)
	if err != nil {
		return fmt.Errorf("check delivery type: %w", err)
	}
	if !exists {
		return domain.ErrDeliveryTypeNotFound
	}
	return nil
}

func enqueue(ctx context.Context, tx domain.Tx, eventType string, event domain.OrderEvent) error {
	msg, err := domain.NewOrderOutboxMessage(eventType, event)
	if err != nil {
		return err
	}
	if err := tx.EnqueueOutbox(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}

// stockError добавляет к ошибке склада идентификатор товара.
func stockError(productID int64, err error) error {
	return fmt.Errorf("%w (product_id %d)", err, productID)
}

func (s *Service) observe(operation string) func(error) {
	if s.metrics == nil {
		return func(error) {}
	}
	done := s.metrics.RecordOperationStarted(operation)
	return func(err error) { done(outcomeOf(err)) }
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case domain.IsValidation(err):
		return metrics.OutcomeInvalid
	case domain.IsNotFound(err):
		return metrics.OutcomeNotFound
	case domain.IsConflict(err):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}
