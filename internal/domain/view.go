package domain

import "time"

// CartLine — строка корзины в проекции заказа.
type CartLine struct {
	ProductID int64  `json:"id_product"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	Price     int64  `json:"price"`
}

// OrderView — заказ вместе с данными справочников и агрегированной корзиной.
// TotalPrice равен nil, если у заказа нет позиций.
type OrderView struct {
	ID              int64      `json:"id"`
	CustomerID      int64      `json:"customer_id"`
	CustomerLogin   string     `json:"customerLogin"`
	Status          string     `json:"status"`
	Address         Address    `json:"address"`
	DeliveryType    string     `json:"deliveryType"`
	CreateOrderDate time.Time  `json:"createOrderDate"`
	TotalPrice      *int64     `json:"totalPrice"`
	Cart            []CartLine `json:"cart"`
}

// SortDirection задаёт направление сортировки выборки.
type SortDirection string

const (
	SortNone SortDirection = ""
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 3
	// MaxPageSize ограничивает размер страницы сверху.
	MaxPageSize = 6
)

// OrderFilter описывает условия выборки списка заказов. Все условия объединяются через AND.
type OrderFilter struct {
	CustomerLogin string
	Statuses      []string
	ProductName   string
	Page          int
	PageSize      int
	SortByDate    SortDirection
	SortByPrice   SortDirection
}

// Normalize подставляет значения по умолчанию и ограничивает размер страницы.
func (f OrderFilter) Normalize() OrderFilter {
	if f.Page <= 0 {
		f.Page = DefaultPage
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset возвращает смещение первой записи страницы.
func (f OrderFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// TotalPrice считает сумму quantity*price по корзине; nil для пустой корзины.
func TotalPrice(cart []CartLine) *int64 {
	if len(cart) == 0 {
		return nil
	}
	var total int64
	for _, line := range cart {
		total += line.Quantity * line.Price
	}
	return &total
}

// ParseSortDirection переводит значение query-параметра в направление сортировки:
// "true" означает убывание, любое другое непустое значение означает возрастание.
func ParseSortDirection(raw string) SortDirection {
	switch raw {
	case "":
		return SortNone
	case "true":
		return SortDesc
	default:
		return SortAsc
	}
}
