package domain

import (
	"sort"
	"strings"
	"time"
)

// StatusCart — статус, который получает каждый новый заказ («корзина»).
const StatusCart int64 = 1

// Address описывает адрес доставки заказа.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	House   string `json:"house"`
	ZipCode string `json:"zip_code"`
}

// Complete сообщает, заполнены ли все четыре поля адреса.
func (a Address) Complete() bool {
	return strings.TrimSpace(a.Street) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.House) != "" &&
		strings.TrimSpace(a.ZipCode) != ""
}

// Order хранит строку заказа без позиций.
type Order struct {
	ID             int64
	CustomerID     int64
	StatusID       int64
	DeliveryTypeID int64
	Address        Address
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LineItem — одна позиция заказа. Для пары (OrderID, ProductID) существует не больше одной записи.
type LineItem struct {
	OrderID   int64
	ProductID int64
	Quantity  int64
}

// Product описывает товар со складским остатком.
type Product struct {
	ID       int64
	Name     string
	Price    int64
	Quantity int64
}

// Customer, DeliveryType и Status — справочники, которые сервис только читает.
type Customer struct {
	ID    int64
	Login string
}

type DeliveryType struct {
	ID   int64
	Name string
}

type Status struct {
	ID          int64
	Description string
}

// ItemRequest — позиция из входящего запроса: товар и желаемое количество.
type ItemRequest struct {
	ProductID int64
	Quantity  int64
}

// MergeItems суммирует количества одинаковых товаров и сортирует позиции по ProductID.
// Фиксированный порядок нужен, чтобы конкурентные транзакции блокировали товары одинаково.
func MergeItems(items []ItemRequest) []ItemRequest {
	totals := make(map[int64]int64, len(items))
	for _, item := range items {
		totals[item.ProductID] += item.Quantity
	}

	merged := make([]ItemRequest, 0, len(totals))
	for productID, qty := range totals {
		merged = append(merged, ItemRequest{ProductID: productID, Quantity: qty})
	}
	SortItems(merged)
	return merged
}

// SortItems упорядочивает позиции по возрастанию ProductID.
func SortItems(items []ItemRequest) {
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
}
