package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

const (
	msgOrderNotFound = "Order not found."
	msgInternal      = "internal server error"
)

// errorStatus сопоставляет доменную ошибку HTTP-статусу.
func errorStatus(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errRequestInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorBody формирует ответ; текст внутренних ошибок наружу не отдаётся.
func errorBody(status int, err error) errorResponse {
	if status == http.StatusInternalServerError {
		return errorResponse{Error: msgInternal}
	}
	return errorResponse{Error: err.Error()}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Error("request failed")
	}
	writeJSON(w, status, errorBody(status, err))
}
