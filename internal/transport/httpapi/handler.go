// Package httpapi публикует операции над заказами как REST API поверх chi.
package httpapi

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
)

const defaultIdempotencyTTL = 24 * time.Hour

// OrderService перечисляет операции агрегата заказа, которые нужны транспорту.
type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (int64, error)
	PatchOrder(ctx context.Context, in orders.PatchOrderInput) (orders.PatchMode, error)
	GetOrders(ctx context.Context, q orders.OrderQuery) ([]domain.OrderView, error)
	DeleteOrder(ctx context.Context, orderID int64) error
}

// Handler обслуживает HTTP-запросы к заказам.
type Handler struct {
	orders         OrderService
	idempotency    domain.IdempotencyRepository
	idempotencyTTL time.Duration
	logger         *log.Entry
	now            func() time.Time
}

// Option настраивает Handler.
type Option func(*Handler)

// WithLogger задаёт логгер транспорта.
func WithLogger(logger *log.Entry) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithIdempotency включает поддержку заголовка Idempotency-Key для создания заказа.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(h *Handler) {
		h.idempotency = repo
		if ttl > 0 {
			h.idempotencyTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler создаёт обработчик поверх сервиса заказов.
func NewHandler(svc OrderService, opts ...Option) *Handler {
	h := &Handler{
		orders:         svc,
		idempotencyTTL: defaultIdempotencyTTL,
		logger:         log.WithField("component", "http"),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
