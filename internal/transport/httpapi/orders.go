package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
)

const (
	msgDone         = "Done"
	msgOrderDeleted = "Order and related details deleted successfully."
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" || h.idempotency == nil {
		status, resp := h.executeCreate(r, body)
		writeJSON(w, status, resp)
		return
	}

	h.withIdempotency(w, r, key, body, func() (int, any) {
		return h.executeCreate(r, body)
	})
}

func (h *Handler) executeCreate(r *http.Request, body []byte) (int, any) {
	var req createOrderRequest
	if err := decodeBody(body, &req); err != nil {
		return h.failure(r, err)
	}

	orderID, err := h.orders.CreateOrder(r.Context(), req.toInput())
	if err != nil {
		return h.failure(r, err)
	}
	return http.StatusOK, createOrderResponse{OrderID: orderID}
}

func (h *Handler) patchOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req patchOrderRequest
	if err := decodeBody(body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in, err := req.toInput(orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	mode, err := h.orders.PatchOrder(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if mode == orders.PatchModeFull {
		writeJSON(w, http.StatusOK, successResponse{Success: msgDone})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgDone})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views, err := h.orders.GetOrders(r.Context(), orders.OrderQuery{Filter: filter})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views, err := h.orders.GetOrders(r.Context(), orders.OrderQuery{OrderID: &orderID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	err = h.orders.DeleteOrder(r.Context(), orderID)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: msgOrderNotFound})
	case err != nil:
		h.writeError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, messageResponse{Message: msgOrderDeleted})
	}
}

// failure возвращает статус и тело ошибки, не записывая ответ.
func (h *Handler) failure(r *http.Request, err error) (int, any) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	return status, errorBody(status, err)
}

func parseOrderID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidOrderID
	}
	return id, nil
}

// parseFilter читает параметры выборки: user, status (повторяемый), page, pageSize,
// sortByDate, sortByPrice, productName.
func parseFilter(q url.Values) (domain.OrderFilter, error) {
	filter := domain.OrderFilter{
		CustomerLogin: strings.TrimSpace(q.Get("user")),
		ProductName:   strings.TrimSpace(q.Get("productName")),
		SortByDate:    domain.ParseSortDirection(q.Get("sortByDate")),
		SortByPrice:   domain.ParseSortDirection(q.Get("sortByPrice")),
	}

	for _, status := range q["status"] {
		if status = strings.TrimSpace(status); status != "" {
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	var err error
	if filter.Page, err = parsePositive(q.Get("page")); err != nil {
		return domain.OrderFilter{}, err
	}
	if filter.PageSize, err = parsePositive(q.Get("pageSize")); err != nil {
		return domain.OrderFilter{}, err
	}
	return filter, nil
}

// parsePositive возвращает 0 для пустого значения: подставить default должен Normalize.
func parsePositive(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, domain.ErrInvalidPaging
	}
	return value, nil
}
