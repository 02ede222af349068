package orders

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// RetryConfig конфигурация повторов транзакций при конфликте сериализации.
// Задержка удваивается после каждой попытки и ограничена MaxDelay.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
	}
}

func (c RetryConfig) attempts() int {
	if c.MaxAttempts <= 0 {
		return 1
	}
	return c.MaxAttempts
}

// backoff собирает политику задержек; общее число попыток равно attempts().
func (c RetryConfig) backoff() retry.Backoff {
	var b retry.Backoff
	if c.InitialDelay > 0 {
		b = retry.NewExponential(c.InitialDelay)
		if c.MaxDelay > 0 {
			b = retry.WithCappedDuration(c.MaxDelay, b)
		}
	} else {
		b = retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	return retry.WithMaxRetries(uint64(c.attempts()-1), b)
}

// withRetry повторяет fn, пока она возвращает domain.ErrTxConflict. Остальные ошибки возвращаются сразу.
func (s *Service) withRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempts := s.retry.attempts()
	attempt := 0

	err := retry.Do(ctx, s.retry.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !domain.IsTxConflict(err) {
			return err
		}
		if attempt < attempts {
			s.logger.WithFields(log.Fields{
				"operation": operation,
				"attempt":   attempt,
				"error":     err,
			}).Warn("Transaction conflict, retrying")
			if s.metrics != nil {
				s.metrics.RecordTxRetry()
			}
		}
		return retry.RetryableError(err)
	})

	switch {
	case err == nil && attempt > 1:
		s.logger.WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
		}).Info("Operation succeeded after retry")
	case domain.IsTxConflict(err):
		s.logger.WithFields(log.Fields{
			"operation":    operation,
			"max_attempts": attempts,
			"error":        err,
		}).Error("Operation failed after all retry attempts")
	}
	return err
}
