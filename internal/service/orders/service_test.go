package orders_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/memory"
)

func newService(t *testing.T) (*orders.Service, *memory.Store) {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	store := memory.NewStore()
	svc := orders.NewService(store,
		orders.WithLogger(logger.WithField("component", "orders-test")),
		orders.WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
	)
	return svc, store
}

func address() *domain.Address {
	return &domain.Address{Street: "Lenina", City: "Kazan", House: "12", ZipCode: "420000"}
}

func ptr(v int64) *int64 { return &v }

func stock(t *testing.T, store *memory.Store, productID int64) int64 {
	t.Helper()
	product, ok := store.Product(productID)
	require.True(t, ok)
	return product.Quantity
}

func cartOf(t *testing.T, svc *orders.Service, orderID int64) map[int64]int64 {
	t.Helper()
	views, err := svc.GetOrders(context.Background(), orders.OrderQuery{OrderID: ptr(orderID)})
	require.NoError(t, err)
	require.Len(t, views, 1)

	cart := make(map[int64]int64, len(views[0].Cart))
	for _, line := range views[0].Cart {
		cart[line.ProductID] = line.Quantity
	}
	return cart
}

func TestCreateOrder_ReservesStockAndEnqueuesEvent(t *testing.T) {
	svc, store := newService(t)

	orderID, err := svc.CreateOrder(context.Background(), orders.CreateOrderInput{
		CustomerID:     1,
		DeliveryTypeID: 2,
		Address:        address(),
		Items: []domain.ItemRequest{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 3},
			{ProductID: 1, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), orderID)

	require.Equal(t, int64(47), stock(t, store, 1))
	require.Equal(t, int64(97), stock(t, store, 2))
	require.Equal(t, map[int64]int64{1: 3, 2: 3}, cartOf(t, svc, orderID))
	require.Equal(t, []string{domain.EventOrderCreated}, store.Outbox().EventTypes())

	views, err := svc.GetOrders(context.Background(), orders.OrderQuery{OrderID: ptr(orderID)})
	require.NoError(t, err)
	require.Equal(t, "cart", views[0].Status)
	require.Equal(t, "pickup", views[0].DeliveryType)
	require.Equal(t, int64(3*4990+3*1990), *views[0].TotalPrice)
}

func TestCreateOrder_Validation(t *testing.T) {
	svc, _ := newService(t)
	valid := orders.CreateOrderInput{
		CustomerID:     1,
		DeliveryTypeID: 1,
		Address:        address(),
		Items:          []domain.ItemRequest{{ProductID: 1, Quantity: 1}},
	}

	tests := []struct {
		name   string
		mutate func(in *orders.CreateOrderInput)
		want   error
	}{
		{name: "missing customer", mutate: func(in *orders.CreateOrderInput) { in.CustomerID = 0 }, want: domain.ErrInvalidRequest},
		{name: "missing delivery type", mutate: func(in *orders.CreateOrderInput) { in.DeliveryTypeID = 0 }, want: domain.ErrInvalidRequest},
		{name: "missing address", mutate: func(in *orders.CreateOrderInput) { in.Address = nil }, want: domain.ErrInvalidRequest},
		{name: "incomplete address", mutate: func(in *orders.CreateOrderInput) { in.Address = &domain.Address{Street: "x"} }, want: domain.ErrAddressIncomplete},
		{name: "no items", mutate: func(in *orders.CreateOrderInput) { in.Items = nil }, want: domain.ErrItemsRequired},
		{name: "zero quantity", mutate: func(in *orders.CreateOrderInput) { in.Items = []domain.ItemRequest{{ProductID: 1}} }, want: domain.ErrItemQtyInvalid},
		{name: "bad product id", mutate: func(in *orders.CreateOrderInput) { in.Items = []domain.ItemRequest{{Quantity: 1}} }, want: domain.ErrItemProductInvalid},
		{name: "merged quantity overflows", mutate: func(in *orders.CreateOrderInput) {
			in.Items = []domain.ItemRequest{{ProductID: 1, Quantity: 1 << 62}, {ProductID: 1, Quantity: 1 << 62}}
		}, want: domain.ErrItemQtyInvalid},
		{name: "unknown customer", mutate: func(in *orders.CreateOrderInput) { in.CustomerID = 99 }, want: domain.ErrCustomerNotFound},
		{name: "unknown delivery type", mutate: func(in *orders.CreateOrderInput) { in.DeliveryTypeID = 99 }, want: domain.ErrDeliveryTypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := svc.CreateOrder(context.Background(), in)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateOrder_InsufficientStockRollsBack(t *testing.T) {
	svc, store := newService(t)

	_, err := svc.CreateOrder(context.Background(), orders.CreateOrderInput{
		CustomerID:     1,
		DeliveryTypeID: 1,
		Address:        address(),
		Items: []domain.ItemRequest{
			{ProductID: 1, Quantity: 5},
			{ProductID: 3, Quantity: 21},
		},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	require.True(t, domain.IsConflict(err))
	require.Contains(t, err.Error(), "product_id 3")

	require.Equal(t, int64(50), stock(t, store, 1))
	require.Equal(t, int64(20), stock(t, store, 3))
	require.Empty(t, store.Outbox().EventTypes())

	views, err := svc.GetOrders(context.Background(), orders.OrderQuery{})
	require.NoError(t, err)
	require.Empty(t, views)
}

func TestCreateOrder_OverflowingDuplicatesRejectedBeforeStore(t *testing.T) {
	svc, store := newService(t)

	_, err := svc.CreateOrder(context.Background(), orders.CreateOrderInput{
		CustomerID:     1,
		DeliveryTypeID: 1,
		Address:        address(),
		Items: []domain.ItemRequest{
			{ProductID: 1, Quantity: math.MaxInt64},
			{ProductID: 1, Quantity: 1},
		},
	})
	require.ErrorIs(t, err, domain.ErrItemQtyInvalid)
	require.True(t, domain.IsValidation(err))
	require.NotContains(t, err.Error(), "insert")

	require.Equal(t, int64(50), stock(t, store, 1))
	require.Empty(t, store.Outbox().EventTypes())
}

func TestCreateOrder_ConcurrentReservationsNeverOversell(t *testing.T) {
	svc, store := newService(t)
	initial := stock(t, store, 3)

	const workers = 30
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		errs      = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(context.Background(), orders.CreateOrderInput{
				CustomerID:     1,
				DeliveryTypeID: 1,
				Address:        address(),
				Items:          []domain.ItemRequest{{ProductID: 3, Quantity: 1}},
			})
			if err != nil {
				errs <- err
				return
			}
			succeeded.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.ErrorIs(t, err, domain.ErrInsufficientStock)
	}
	require.Equal(t, initial, succeeded.Load())
	require.Zero(t, stock(t, store, 3))

	views, err := svc.GetOrders(context.Background(), orders.OrderQuery{Filter: domain.OrderFilter{PageSize: domain.MaxPageSize}})
	require.NoError(t, err)
	require.NotEmpty(t, views)
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.CreateOrder(context.Background(), orders.CreateOrderInput{
		CustomerID:     1,
		DeliveryTypeID: 1,
		Address:        address(),
		Items:          []domain.ItemRequest{{ProductID: 404, Quantity: 1}},
	})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func createDefaultOrder(t *testing.T, svc *orders.Service) int64 {
	t.Helper()
	orderID, err := svc.CreateOrder(context.Background(), orders.CreateOrderInput{
		CustomerID:     1,
		DeliveryTypeID: 1,
		Address:        address(),
		Items: []domain.ItemRequest{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 5},
		},
	})
	require.NoError(t, err)
	return orderID
}

func TestPatchOrder_StatusPath(t *testing.T) {
	svc, store := newService(t)
	orderID := createDefaultOrder(t, svc)

	t.Run("status only", func(t *testing.T) {
		mode, err := svc.PatchOrder(context.Background(), orders.PatchOrderInput{OrderID: orderID, Status: ptr(2)})
		require.NoError(t, err)
		require.Equal(t, orders.PatchModeStatus, mode)

		views, err := svc.GetOrders(context.Background(), orders.OrderQuery{OrderID: ptr(orderID)})
		require.NoError(t, err)
		require.Equal(t, "confirmed", views[0].Status)
	})

	t.Run("status wins over full update fields", func(t *testing.T) {
		mode, err := svc.PatchOrder(context.Background(), orders.PatchOrderInput{
			OrderID:        orderID,
			Status:         ptr(3),
			CustomerID:     ptr(2),
			DeliveryTypeID: ptr(2),
			Address:        address(),
			Items:          []domain.ItemRequest{{ProductID: 1, Quantity: 10}},
		})
		require.NoError(t, err)
		require.Equal(t, orders.PatchModeStatus, mode)
		require.Equal(t, map[int64]int64{1: 2, 2: 5}, cartOf(t, svc, orderID))
		require.Equal(t, int64(48), stock(t, store, 1))
	})

	t.Run("partial body without status", func(t *testing.T) {
		mode, err := svc.PatchOrder(context.Background(), orders.PatchOrderInput{OrderID: orderID, CustomerID: ptr(2)})
		require.ErrorIs(t, err, domain.ErrInvalidStatus)
		require.Equal(t, orders.PatchModeStatus, mode)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := svc.PatchOrder(context.Background(), orders.PatchOrderInput{OrderID: orderID, Status: ptr(77)})
		require.ErrorIs(t, err, domain.ErrStatusNotFound)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := svc.PatchOrder(context.Background(), orders.PatchOrderInput{OrderID: 999, Status: ptr(2)})
		require.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	require.Equal(t, []string{
		domain.EventOrderCreated,
		domain.EventOrderStatusChanged,
		domain.EventOrderStatusChanged,
	}, store.Outbox().EventTypes())
}

func fullPatch(orderID int64, items ...domain.ItemRequest) orders.PatchOrderInput {
	return orders.PatchOrderInput{
		OrderID:        orderID,
		CustomerID:     ptr(2),
		DeliveryTypeID: ptr(3),
		Address:        &domain.Address{Street: "Pushkina", City: "Moscow", House: "10", ZipCode: "101000"},
		Items:          items,
	}
}

func TestPatchOrder_FullUpdateReconcilesItems(t *testing.T) {
	svc, store := newService(t)
	orderID := createDefaultOrder(t, svc)
	otherID := createDefaultOrder(t, svc)

	mode, err := svc.PatchOrder(context.Background(), fullPatch(orderID,
		domain.ItemRequest{ProductID: 1, Quantity: 4},
		domain.ItemRequest{ProductID: 2, Quantity: 0},
		domain.ItemRequest{ProductID: 4, Quantity: 7},
	))
	require.NoError(t, err)
	require.Equal(t, orders.PatchModeFull, mode)

	require.Equal(t, map[int64]int64{1: 4, 4: 7}, cartOf(t, svc, orderID))
	require.Equal(t, map[int64]int64{1: 2, 2: 5}, cartOf(t, svc, otherID))

	// 50 - 2 (other) - 4
	require.Equal(t, int64(44), stock(t, store, 1))
	// 100 - 5 (other)
	require.Equal(t, int64(95), stock(t, store, 2))
	require.Equal(t, int64(293), stock(t, store, 4))

	views, err := svc.GetOrders(context.Background(), orders.OrderQuery{OrderID: ptr(orderID)})
	require.NoError(t, err)
	require.Equal(t, "bob", views[0].CustomerLogin)
	require.Equal(t, "post", views[0].DeliveryType)
	require.Equal(t, "Moscow", views[0].Address.City)
	require.Equal(t, "cart", views[0].Status)
}

func TestPatchOrder_FullUpdateIsIdempotent(t *testing.T) {
	svc, store := newService(t)
	orderID := createDefaultOrder(t, svc)

	patch := fullPatch(orderID, domain.ItemRequest{ProductID: 1, Quantity: 1}, domain.ItemRequest{ProductID: 2, Quantity: 0})
	for i := 0; i < 2; i++ {
		_, err := svc.PatchOrder(context.Background(), patch)
		require.NoError(t, err)
	}

	require.Equal(t, map[int64]int64{1: 1}, cartOf(t, svc, orderID))
	require.Equal(t, int64(49), stock(t, store, 1))
	require.Equal(t, int64(100), stock(t, store, 2))
}

func TestPatchOrder_FullUpdateShortfallRollsBack(t *testing.T) {
	svc, store := newService(t)
	orderID := createDefaultOrder(t, svc)

	_, err := svc.PatchOrder(context.Background(), fullPatch(orderID,
		domain.ItemRequest{ProductID: 2, Quantity: 0},
		domain.ItemRequest{ProductID: 3, Quantity: 25},
	))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	require.Equal(t, map[int64]int64{1: 2, 2: 5}, cartOf(t, svc, orderID))
	require.Equal(t, int64(95), stock(t, store, 2))
	require.Equal(t, int64(20), stock(t, store, 3))

	views, err := svc.GetOrders(context.Background(), orders.OrderQuery{OrderID: ptr(orderID)})
	require.NoError(t, err)
	require.Equal(t, "alice", views[0].CustomerLogin)
}

func TestPatchOrder_FullUpdateValidation(t *testing.T) {
	svc, _ := newService(t)
	orderID := createDefaultOrder(t, svc)

	tests := []struct {
		name  string
		patch orders.PatchOrderInput
		want  error
	}{
		{
			name:  "duplicate product",
			patch: fullPatch(orderID, domain.ItemRequest{ProductID: 1, Quantity: 1}, domain.ItemRequest{ProductID: 1, Quantity: 2}),
			want:  domain.ErrDuplicateProduct,
		},
		{
			name:  "negative quantity",
			patch: fullPatch(orderID, domain.ItemRequest{ProductID: 1, Quantity: -1}),
			want:  domain.ErrItemQtyInvalid,
		},
		{
			name:  "empty items",
			patch: fullPatch(orderID, []domain.ItemRequest{}...),
			want:  domain.ErrItemsRequired,
		},
		{
			name:  "unknown order",
			patch: fullPatch(999, domain.ItemRequest{ProductID: 1, Quantity: 1}),
			want:  domain.ErrOrderNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PatchOrder(context.Background(), tt.patch)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("incomplete address", func(t *testing.T) {
		patch := fullPatch(orderID, domain.ItemRequest{ProductID: 1, Quantity: 1})
		patch.Address = &domain.Address{City: "Moscow"}
		_, err := svc.PatchOrder(context.Background(), patch)
		require.ErrorIs(t, err, domain.ErrAddressIncomplete)
	})

	t.Run("unknown customer", func(t *testing.T) {
		patch := fullPatch(orderID, domain.ItemRequest{ProductID: 1, Quantity: 1})
		patch.CustomerID = ptr(500)
		_, err := svc.PatchOrder(context.Background(), patch)
		require.ErrorIs(t, err, domain.ErrCustomerNotFound)
	})
}

func TestGetOrders(t *testing.T) {
	svc, _ := newService(t)
	for i := 0; i < 4; i++ {
		createDefaultOrder(t, svc)
	}

	t.Run("missing order gives empty list", func(t *testing.T) {
		views, err := svc.GetOrders(context.Background(), orders.OrderQuery{OrderID: ptr(100)})
		require.NoError(t, err)
		require.NotNil(t, views)
		require.Empty(t, views)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := svc.GetOrders(context.Background(), orders.OrderQuery{OrderID: ptr(-1)})
		require.ErrorIs(t, err, domain.ErrInvalidOrderID)
	})

	t.Run("default page size", func(t *testing.T) {
		views, err := svc.GetOrders(context.Background(), orders.OrderQuery{})
		require.NoError(t, err)
		require.Len(t, views, domain.DefaultPageSize)
	})

	t.Run("id ignores other filters", func(t *testing.T) {
		views, err := svc.GetOrders(context.Background(), orders.OrderQuery{
			OrderID: ptr(4),
			Filter:  domain.OrderFilter{CustomerLogin: "nobody"},
		})
		require.NoError(t, err)
		require.Len(t, views, 1)
	})

	t.Run("invalid paging", func(t *testing.T) {
		_, err := svc.GetOrders(context.Background(), orders.OrderQuery{Filter: domain.OrderFilter{Page: -1}})
		require.ErrorIs(t, err, domain.ErrInvalidPaging)
	})
}

func TestDeleteOrder_ReturnsStock(t *testing.T) {
	svc, store := newService(t)
	orderID := createDefaultOrder(t, svc)

	require.NoError(t, svc.DeleteOrder(context.Background(), orderID))
	require.Equal(t, int64(50), stock(t, store, 1))
	require.Equal(t, int64(100), stock(t, store, 2))

	views, err := svc.GetOrders(context.Background(), orders.OrderQuery{OrderID: ptr(orderID)})
	require.NoError(t, err)
	require.Empty(t, views)

	err = svc.DeleteOrder(context.Background(), orderID)
	require.True(t, errors.Is(err, domain.ErrOrderNotFound))

	require.ErrorIs(t, svc.DeleteOrder(context.Background(), 0), domain.ErrInvalidOrderID)
	require.Equal(t, []string{domain.EventOrderCreated, domain.EventOrderDeleted}, store.Outbox().EventTypes())
}
