package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/app"
	"github.com/vladislavdragonenkov/orderdesk/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, nil); err != nil {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}
	log.Info("order-api остановлен")
}

// run читает конфигурацию из environ (nil означает окружение процесса) и работает до отмены ctx.
func run(ctx context.Context, environ map[string]string) error {
	cfg, err := app.LoadConfig(environ)
	if err != nil {
		return fmt.Errorf("некорректная конфигурация: %w", err)
	}
	app.ConfigureLogger(cfg)

	log.WithFields(version.Current().Fields()).WithFields(log.Fields{
		"http_addr":     cfg.HTTPAddr,
		"grpc_addr":     cfg.GRPCAddr,
		"metrics_addr":  cfg.MetricsAddr,
		"storage":       cfg.StorageDriver,
		"idempotency":   cfg.IdempotencyBackend,
		"kafka_enabled": len(cfg.KafkaBrokers) > 0,
	}).Info("запускаем order-api")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
