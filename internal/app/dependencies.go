package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/health"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/postgres"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/redis"
)

// runtimeDependencies содержит хранилища, выбранные конфигурацией, и их проверки здоровья.
type runtimeDependencies struct {
	store           domain.Store
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	checkers        map[string]health.Checker
	closers         []func() error
}

// initRuntimeDependencies открывает хранилище заказов и хранилище ключей идемпотентности.
// При ошибке уже открытые подключения закрываются.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{checkers: make(map[string]health.Checker)}
	if err := deps.open(ctx, cfg, logger); err != nil {
		if closeErr := deps.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close partially opened dependencies")
		}
		return nil, err
	}
	return deps, nil
}

func (d *runtimeDependencies) open(ctx context.Context, cfg Config, logger *log.Entry) error {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		store := memory.NewStore()
		d.store = store
		d.outboxRepo = store.Outbox()
		d.idempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return errors.New("postgres storage requires OMS_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		d.closers = append(d.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		d.store = store
		d.outboxRepo = postgres.NewOutboxRepository(store)
		d.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		logger.Info("using postgres storage")
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
	d.checkers["storage"] = health.NewPingChecker("storage", d.store, true)

	if cfg.IdempotencyBackend == IdempotencyBackendRedis {
		client, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		d.closers = append(d.closers, client.Close)
		d.idempotencyRepo = redis.NewIdempotencyRepository(client)
		d.checkers["redis"] = health.NewPingChecker("redis", client, false)
		logger.Info("using redis for idempotency keys")
	}

	return nil
}

// Close закрывает подключения в обратном порядке открытия.
func (d *runtimeDependencies) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
