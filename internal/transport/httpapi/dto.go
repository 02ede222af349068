package httpapi

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
)

type addressDTO struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	House   string `json:"house"`
	ZipCode string `json:"zip_code"`
}

type orderDetailDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type createOrderRequest struct {
	CustomerID     int64            `json:"customer_id"`
	DeliveryTypeID int64            `json:"delivery_type_id"`
	OrderDetails   []orderDetailDTO `json:"order_details"`
	Address        *addressDTO      `json:"address"`
}

// patchOrderRequest различает отсутствующие поля и нулевые значения: от этого зависит ветка обновления.
type patchOrderRequest struct {
	CustomerID     *int64           `json:"customer_id"`
	DeliveryTypeID *int64           `json:"delivery_type_id"`
	OrderDetails   []orderDetailDTO `json:"order_details"`
	Address        *addressDTO      `json:"address"`
	Status         json.RawMessage  `json:"status"`
}

type createOrderResponse struct {
	OrderID int64 `json:"order_id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type successResponse struct {
	Success string `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *addressDTO) toDomain() *domain.Address {
	if a == nil {
		return nil
	}
	return &domain.Address{
		Street:  a.Street,
		City:    a.City,
		House:   a.House,
		ZipCode: a.ZipCode,
	}
}

// toItems сохраняет различие между nil (поле не передано) и пустым списком.
func toItems(details []orderDetailDTO) []domain.ItemRequest {
	if details == nil {
		return nil
	}
	items := make([]domain.ItemRequest, 0, len(details))
	for _, d := range details {
		items = append(items, domain.ItemRequest{ProductID: d.ProductID, Quantity: d.Quantity})
	}
	return items
}

func (req createOrderRequest) toInput() orders.CreateOrderInput {
	return orders.CreateOrderInput{
		CustomerID:     req.CustomerID,
		DeliveryTypeID: req.DeliveryTypeID,
		Items:          toItems(req.OrderDetails),
		Address:        req.Address.toDomain(),
	}
}

func (req patchOrderRequest) toInput(orderID int64) (orders.PatchOrderInput, error) {
	status, err := parseStatus(req.Status)
	if err != nil {
		return orders.PatchOrderInput{}, err
	}
	return orders.PatchOrderInput{
		OrderID:        orderID,
		Status:         status,
		CustomerID:     req.CustomerID,
		DeliveryTypeID: req.DeliveryTypeID,
		Items:          toItems(req.OrderDetails),
		Address:        req.Address.toDomain(),
	}, nil
}

// parseStatus принимает статус числом или строкой с числом. Дробная часть допустима только нулевая (2.0).
// null и отсутствие поля равнозначны.
func parseStatus(raw json.RawMessage) (*int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, domain.ErrInvalidStatus
		}
		text = strings.TrimSpace(text)
	}

	number := json.Number(text)
	if value, err := number.Int64(); err == nil {
		return &value, nil
	}
	f, err := number.Float64()
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, domain.ErrInvalidStatus
	}
	value := int64(f)
	return &value, nil
}
