package orders

import "github.com/vladislavdragonenkov/orderdesk/internal/domain"

// CreateOrderInput содержит данные для создания заказа.
type CreateOrderInput struct {
	CustomerID     int64
	DeliveryTypeID int64
	Items          []domain.ItemRequest
	Address        *domain.Address
}

// PatchOrderInput описывает частичное обновление заказа.
// nil-поля считаются отсутствующими в запросе; от их набора зависит режим обновления.
type PatchOrderInput struct {
	OrderID        int64
	Status         *int64
	CustomerID     *int64
	DeliveryTypeID *int64
	Items          []domain.ItemRequest
	Address        *domain.Address
}

// PatchMode показывает, какая ветка обновления была выполнена.
type PatchMode int

const (
	// PatchModeStatus — изменён только статус заказа.
	PatchModeStatus PatchMode = iota + 1
	// PatchModeFull — обновлены поля заказа и его позиции.
	PatchModeFull
)

func (m PatchMode) String() string {
	switch m {
	case PatchModeStatus:
		return "status"
	case PatchModeFull:
		return "full"
	default:
		return "unknown"
	}
}

// statusOnly повторяет правило выбора ветки: статус указан или не хватает хотя бы одного поля полного обновления.
func (in PatchOrderInput) statusOnly() bool {
	return in.Status != nil ||
		in.CustomerID == nil ||
		in.DeliveryTypeID == nil ||
		in.Items == nil ||
		in.Address == nil
}

// ignoredFields перечисляет поля, которые статусная ветка не применяет.
func (in PatchOrderInput) ignoredFields() []string {
	var fields []string
	if in.CustomerID != nil {
		fields = append(fields, "customer_id")
	}
	if in.DeliveryTypeID != nil {
		fields = append(fields, "delivery_type_id")
	}
	if in.Items != nil {
		fields = append(fields, "order_details")
	}
	if in.Address != nil {
		fields = append(fields, "address")
	}
	return fields
}

// OrderQuery задаёт параметры выборки заказов. Если OrderID задан, фильтры игнорируются.
type OrderQuery struct {
	OrderID *int64
	Filter  domain.OrderFilter
}
