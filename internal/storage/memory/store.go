package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// state хранит полный снимок данных.
// Справочники неизменяемы и разделяются между снимками, остальное копируется на запись.
type state struct {
	customers     map[int64]domain.Customer
	deliveryTypes map[int64]domain.DeliveryType
	statuses      map[int64]domain.Status
	products      map[int64]domain.Product
	orders        map[int64]domain.Order
	items         map[int64]map[int64]int64
	nextOrderID   int64
}

func newState(seed Seed) *state {
	st := &state{
		customers:     make(map[int64]domain.Customer, len(seed.Customers)),
		deliveryTypes: make(map[int64]domain.DeliveryType, len(seed.DeliveryTypes)),
		statuses:      make(map[int64]domain.Status, len(seed.Statuses)),
		products:      make(map[int64]domain.Product, len(seed.Products)),
		orders:        make(map[int64]domain.Order),
		items:         make(map[int64]map[int64]int64),
		nextOrderID:   1,
	}
	for _, c := range seed.Customers {
		st.customers[c.ID] = c
	}
	for _, d := range seed.DeliveryTypes {
		st.deliveryTypes[d.ID] = d
	}
	for _, s := range seed.Statuses {
		st.statuses[s.ID] = s
	}
	for _, p := range seed.Products {
		st.products[p.ID] = p
	}
	return st
}

func (s *state) clone() *state {
	dst := &state{
		customers:     s.customers,
		deliveryTypes: s.deliveryTypes,
		statuses:      s.statuses,
		products:      make(map[int64]domain.Product, len(s.products)),
		orders:        make(map[int64]domain.Order, len(s.orders)),
		items:         make(map[int64]map[int64]int64, len(s.items)),
		nextOrderID:   s.nextOrderID,
	}
	for id, p := range s.products {
		dst.products[id] = p
	}
	for id, o := range s.orders {
		dst.orders[id] = o
	}
	for orderID, lines := range s.items {
		copied := make(map[int64]int64, len(lines))
		for productID, qty := range lines {
			copied[productID] = qty
		}
		dst.items[orderID] = copied
	}
	return dst
}

// Store реализует domain.Store в памяти процесса для локальной разработки и тестов.
// Транзакции сериализуются общим мьютексом и работают над копией состояния,
// которая подменяет текущее только при успешном завершении.
type Store struct {
	mu     sync.RWMutex
	state  *state
	outbox *OutboxRepository
	now    func() time.Time
}

// Option настраивает Store.
type Option func(*Store)

// WithSeed задаёт начальные данные вместо DefaultSeed.
func WithSeed(seed Seed) Option {
	return func(s *Store) { s.state = newState(seed) }
}

// WithOutbox подключает репозиторий outbox, в который попадают события закоммиченных транзакций.
func WithOutbox(repo *OutboxRepository) Option {
	return func(s *Store) { s.outbox = repo }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore создаёт хранилище с данными DefaultSeed, если не указано иное.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.state == nil {
		s.state = newState(DefaultSeed())
	}
	if s.outbox == nil {
		s.outbox = NewOutboxRepository()
	}
	return s
}

// Outbox возвращает репозиторий outbox, связанный с хранилищем.
func (s *Store) Outbox() *OutboxRepository {
	return s.outbox
}

// WithinTx выполняет fn над копией состояния и публикует её только при успехе.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &memTx{st: s.state.clone(), now: s.now()}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state = t.st
	for _, msg := range t.pending {
		if _, err := s.outbox.Enqueue(msg); err != nil {
			return fmt.Errorf("enqueue outbox: %w", err)
		}
	}
	return nil
}

// GetOrderView строит проекцию одного заказа.
func (s *Store) GetOrderView(ctx context.Context, orderID int64) (domain.OrderView, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderView{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.state.orders[orderID]
	if !ok {
		return domain.OrderView{}, domain.ErrOrderNotFound
	}
	return s.state.view(order), nil
}

// ListOrderViews фильтрует, сортирует и пагинирует проекции заказов.
func (s *Store) ListOrderViews(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[string]struct{}, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = struct{}{}
	}
	needle := strings.ToLower(filter.ProductName)

	views := make([]domain.OrderView, 0, len(s.state.orders))
	for _, order := range s.state.orders {
		view := s.state.view(order)
		if filter.CustomerLogin != "" && view.CustomerLogin != filter.CustomerLogin {
			continue
		}
		if len(statuses) > 0 {
			if _, ok := statuses[view.Status]; !ok {
				continue
			}
		}
		if needle != "" && !cartContains(view.Cart, needle) {
			continue
		}
		views = append(views, view)
	}

	sortViews(views, filter)

	offset := filter.Offset()
	if offset >= len(views) {
		return []domain.OrderView{}, nil
	}
	end := offset + filter.PageSize
	if end > len(views) {
		end = len(views)
	}
	return views[offset:end], nil
}

// Ping всегда успешен: данные находятся в памяти процесса.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *state) view(order domain.Order) domain.OrderView {
	lines := s.items[order.ID]
	cart := make([]domain.CartLine, 0, len(lines))
	for productID, qty := range lines {
		product := s.products[productID]
		cart = append(cart, domain.CartLine{
			ProductID: productID,
			Name:      product.Name,
			Quantity:  qty,
			Price:     product.Price,
		})
	}
	sort.Slice(cart, func(i, j int) bool { return cart[i].ProductID < cart[j].ProductID })

	return domain.OrderView{
		ID:              order.ID,
		CustomerID:      order.CustomerID,
		CustomerLogin:   s.customers[order.CustomerID].Login,
		Status:          s.statuses[order.StatusID].Description,
		Address:         order.Address,
		DeliveryType:    s.deliveryTypes[order.DeliveryTypeID].Name,
		CreateOrderDate: order.CreatedAt,
		TotalPrice:      domain.TotalPrice(cart),
		Cart:            cart,
	}
}

func cartContains(cart []domain.CartLine, needle string) bool {
	for _, line := range cart {
		if strings.Contains(strings.ToLower(line.Name), needle) {
			return true
		}
	}
	return false
}

// sortViews повторяет порядок Postgres-реализации: дата, затем сумма, затем id.
// Заказы без позиций (nil total) считаются наименьшими.
func sortViews(views []domain.OrderView, filter domain.OrderFilter) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if filter.SortByDate != domain.SortNone && !a.CreateOrderDate.Equal(b.CreateOrderDate) {
			if filter.SortByDate == domain.SortDesc {
				return a.CreateOrderDate.After(b.CreateOrderDate)
			}
			return a.CreateOrderDate.Before(b.CreateOrderDate)
		}
		if filter.SortByPrice != domain.SortNone {
			if c := comparePrice(a.TotalPrice, b.TotalPrice); c != 0 {
				if filter.SortByPrice == domain.SortDesc {
					return c > 0
				}
				return c < 0
			}
		}
		return a.ID < b.ID
	})
}

func comparePrice(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}

var _ domain.Store = (*Store)(nil)

// Product возвращает текущее состояние товара; используется в тестах и отладке.
func (s *Store) Product(productID int64) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.state.products[productID]
	return product, ok
}
