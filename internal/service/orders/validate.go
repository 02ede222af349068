package orders

import (
	"fmt"
	"math"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

func validateCreate(in CreateOrderInput) error {
	if in.CustomerID <= 0 {
		return fmt.Errorf("%w: customer_id is required", domain.ErrInvalidRequest)
	}
	if in.DeliveryTypeID <= 0 {
		return fmt.Errorf("%w: delivery_type_id is required", domain.ErrInvalidRequest)
	}
	if in.Address == nil {
		return fmt.Errorf("%w: address is required", domain.ErrInvalidRequest)
	}
	if !in.Address.Complete() {
		return domain.ErrAddressIncomplete
	}
	if len(in.Items) == 0 {
		return domain.ErrItemsRequired
	}
	totals := make(map[int64]int64, len(in.Items))
	for _, item := range in.Items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: %d", domain.ErrItemProductInvalid, item.ProductID)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w (product_id %d): must be positive", domain.ErrItemQtyInvalid, item.ProductID)
		}
		// Повторы товара суммируются в MergeItems, сумма должна помещаться в int64.
		if totals[item.ProductID] > math.MaxInt64-item.Quantity {
			return fmt.Errorf("%w (product_id %d): total quantity overflows", domain.ErrItemQtyInvalid, item.ProductID)
		}
		totals[item.ProductID] += item.Quantity
	}
	return nil
}

// validateFullPatch проверяет ветку полного обновления; количество 0 означает удаление позиции.
func validateFullPatch(in PatchOrderInput) error {
	if in.OrderID <= 0 {
		return domain.ErrInvalidOrderID
	}
	if *in.CustomerID <= 0 {
		return fmt.Errorf("%w: customer_id must be positive", domain.ErrInvalidRequest)
	}
	if *in.DeliveryTypeID <= 0 {
		return fmt.Errorf("%w: delivery_type_id must be positive", domain.ErrInvalidRequest)
	}
	if !in.Address.Complete() {
		return domain.ErrAddressIncomplete
	}
	if len(in.Items) == 0 {
		return domain.ErrItemsRequired
	}

	seen := make(map[int64]struct{}, len(in.Items))
	for _, item := range in.Items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: %d", domain.ErrItemProductInvalid, item.ProductID)
		}
		if item.Quantity < 0 {
			return fmt.Errorf("%w (product_id %d): must not be negative", domain.ErrItemQtyInvalid, item.ProductID)
		}
		if _, dup := seen[item.ProductID]; dup {
			return fmt.Errorf("%w: product_id %d", domain.ErrDuplicateProduct, item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

func validateStatusPatch(in PatchOrderInput) error {
	if in.OrderID <= 0 {
		return domain.ErrInvalidOrderID
	}
	if in.Status == nil || *in.Status <= 0 {
		return domain.ErrInvalidStatus
	}
	return nil
}

func validateFilter(f domain.OrderFilter) error {
	if f.Page < 0 {
		return fmt.Errorf("%w: page must be positive", domain.ErrInvalidPaging)
	}
	if f.PageSize < 0 {
		return fmt.Errorf("%w: pageSize must be positive", domain.ErrInvalidPaging)
	}
	return nil
}
