package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// maxBodyBytes ограничивает размер JSON-тела запроса.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func encodeJSON(data any) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(body, '\n'), nil
}

// readBody читает тело целиком, не больше maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidRequest, maxBodyBytes)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return body, nil
}

func decodeBody(body []byte, dst any) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", domain.ErrInvalidRequest)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: malformed JSON", domain.ErrInvalidRequest)
	}
	return nil
}
