package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

const headerIdempotencyKey = "Idempotency-Key"

var errRequestInFlight = errors.New("request with this idempotency key is still processing")

// withIdempotency выполняет exec не больше одного раза на ключ.
// Завершённый ответ проигрывается повторно, тот же ключ с другим телом даёт 422,
// дубль во время обработки даёт 409.
func (h *Handler) withIdempotency(w http.ResponseWriter, r *http.Request, key string, body []byte, exec func() (int, any)) {
	ctx := r.Context()
	requestHash := hashRequest(r.Method, r.URL.Path, body)
	logger := h.logger.WithField("idempotency_key", key)

	record, err := h.idempotency.CreateProcessing(ctx, key, requestHash, h.now().Add(h.idempotencyTTL))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		h.writeError(w, r, err)
		return
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		h.replay(w, r, record)
		return
	default:
		h.writeError(w, r, err)
		return
	}

	status, resp := exec()
	payload, err := encodeJSON(resp)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Ответ сохраняется даже при отмене клиентского контекста.
	saveCtx := context.WithoutCancel(ctx)
	if domain.OutcomeStatus(status) == domain.IdempotencyStatusDone {
		err = h.idempotency.MarkDone(saveCtx, key, payload, status)
	} else {
		err = h.idempotency.MarkFailed(saveCtx, key, payload, status)
	}
	if err != nil {
		logger.WithError(err).Warn("failed to store idempotent response")
	}

	writeRaw(w, status, payload)
}

// replay возвращает сохранённый ответ; пока первый запрос не завершён, отвечает 409.
func (h *Handler) replay(w http.ResponseWriter, r *http.Request, record domain.IdempotencyRecord) {
	if !record.Replayable() {
		h.writeError(w, r, errRequestInFlight)
		return
	}

	h.logger.WithFields(log.Fields{
		"idempotency_key": record.Key,
		"status":          record.HTTPStatus,
	}).Debug("replaying stored response")
	writeRaw(w, record.HTTPStatus, record.ResponseBody)
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{0})
	sum.Write([]byte(path))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
