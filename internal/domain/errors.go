package domain

import "errors"

// Ошибки валидации входных данных (HTTP 400).
var (
	// ErrInvalidRequest — не хватает обязательных полей запроса.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidOrderID — идентификатор заказа не является положительным целым.
	ErrInvalidOrderID = errors.New("invalid data (order_id)")
	// ErrInvalidStatus — статус не является положительным целым.
	ErrInvalidStatus = errors.New("invalid data (status)")
	// ErrAddressIncomplete — адрес передан не полностью.
	ErrAddressIncomplete = errors.New("address is incomplete")
	// ErrItemsRequired — заказ должен содержать хотя бы одну позицию.
	ErrItemsRequired = errors.New("order details array is empty or not provided")
	// ErrItemQtyInvalid — недопустимое количество товара в позиции.
	ErrItemQtyInvalid = errors.New("invalid order detail quantity")
	// ErrItemProductInvalid — недопустимый идентификатор товара в позиции.
	ErrItemProductInvalid = errors.New("invalid order detail product_id")
	// ErrDuplicateProduct — один и тот же товар указан в запросе несколько раз.
	ErrDuplicateProduct = errors.New("duplicate product in order details")
	// ErrInvalidPaging — некорректные параметры page/pageSize.
	ErrInvalidPaging = errors.New("invalid paging parameters")
)

// Ошибки отсутствующих сущностей (HTTP 404).
var (
	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrCustomerNotFound — клиент с указанным идентификатором не существует.
	ErrCustomerNotFound = errors.New("customer does not exist")
	// ErrDeliveryTypeNotFound — тип доставки с указанным идентификатором не существует.
	ErrDeliveryTypeNotFound = errors.New("delivery type does not exist")
	// ErrStatusNotFound — статус с указанным идентификатором не существует.
	ErrStatusNotFound = errors.New("status does not exist")
)

// Бизнес-ошибки (HTTP 409).
var (
	// ErrProductNotFound — товар исчез или не существует во время изменения заказа.
	ErrProductNotFound = errors.New("product is not defined")
	// ErrInsufficientStock — на складе недостаточно товара.
	ErrInsufficientStock = errors.New("not enough quantity available")
)

var (
	// ErrTxConflict — транзакция прервана из-за конфликта сериализации или deadlock, её можно повторить.
	ErrTxConflict = errors.New("transaction conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsValidation проверяет, относится ли ошибка к ошибкам валидации запроса.
func IsValidation(err error) bool {
	return isAny(err,
		ErrInvalidRequest,
		ErrInvalidOrderID,
		ErrInvalidStatus,
		ErrAddressIncomplete,
		ErrItemsRequired,
		ErrItemQtyInvalid,
		ErrItemProductInvalid,
		ErrDuplicateProduct,
		ErrInvalidPaging,
	)
}

// IsNotFound проверяет, сообщает ли ошибка об отсутствующей сущности.
func IsNotFound(err error) bool {
	return isAny(err, ErrOrderNotFound, ErrCustomerNotFound, ErrDeliveryTypeNotFound, ErrStatusNotFound)
}

// IsConflict проверяет, является ли ошибка нарушением бизнес-правил склада.
func IsConflict(err error) bool {
	return isAny(err, ErrProductNotFound, ErrInsufficientStock)
}

// IsTxConflict проверяет, можно ли повторить транзакцию.
func IsTxConflict(err error) bool {
	return errors.Is(err, ErrTxConflict)
}

func isAny(err error, targets ...error) bool {
	if err == nil {
		return false
	}
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
