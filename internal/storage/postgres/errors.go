package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// Коды ошибок PostgreSQL, на которые реагирует хранилище.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgErrorCode(err) == pgForeignKeyViolation
}

func isCheckViolation(err error) bool {
	return pgErrorCode(err) == pgCheckViolation
}

// wrapDBError добавляет к ошибке контекст операции. Конфликты сериализации и deadlock
// дополнительно помечаются domain.ErrTxConflict, чтобы сервис мог повторить транзакцию.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrTxConflict) {
		return err
	}
	switch pgErrorCode(err) {
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTxConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
