// Package app собирает сервис заказов из конфигурации и управляет его жизненным циклом.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/orderdesk/internal/health"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderdesk/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/orderdesk/internal/version"
)

const (
	readHeaderTimeout = 5 * time.Second
	grpcServiceName   = "orderdesk.OrderAPI"
)

// App держит слушающие сокеты, серверы и фоновые воркеры собранного приложения.
type App struct {
	cfg    Config
	logger *log.Entry

	deps       *runtimeDependencies
	publishers eventPublishers

	apiServer     *http.Server
	metricsServer *http.Server
	grpcServer    *grpc.Server
	grpcHealth    *grpchealth.Server

	apiListener     net.Listener
	metricsListener net.Listener
	grpcListener    net.Listener

	outboxWorker  *outbox.Worker
	cleanupWorker *idempotency.CleanupWorker
}

// Run собирает приложение и работает до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	application, err := New(ctx, cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		return err
	}
	return application.Run(ctx)
}

// New открывает хранилища, занимает порты и связывает компоненты, но ничего не запускает.
func New(ctx context.Context, cfg Config, registerer prometheus.Registerer, gatherer prometheus.Gatherer) (*App, error) {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		deps:       deps,
		publishers: initPublishers(cfg, logger),
	}
	if err := a.build(registerer, gatherer); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *App) build(registerer prometheus.Registerer, gatherer prometheus.Gatherer) error {
	retry := orders.DefaultRetryConfig()
	retry.MaxAttempts = a.cfg.TxMaxAttempts

	orderService := orders.NewService(a.deps.store,
		orders.WithLogger(a.logger.WithField("layer", "orders")),
		orders.WithMetrics(metrics.NewOrderMetricsWithRegisterer(registerer)),
		orders.WithRetryConfig(retry),
	)

	handler := httpapi.NewHandler(orderService,
		httpapi.WithLogger(a.logger.WithField("layer", "http")),
		httpapi.WithIdempotency(a.deps.idempotencyRepo, a.cfg.IdempotencyTTL),
	)
	a.apiServer = &http.Server{
		Handler:           httpapi.NewRouter(handler, metrics.NewHTTPMetrics(registerer)),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	healthHandler := health.NewHandler(version.Current().Version)
	for name, checker := range a.deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}
	a.metricsServer = &http.Server{
		Handler:           newMetricsMux(healthHandler, gatherer),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	grpcMetrics := registerGRPCMetrics(registerer, a.logger)
	a.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	a.grpcHealth = grpchealth.NewServer()
	healthpb.RegisterHealthServer(a.grpcServer, a.grpcHealth)
	reflection.Register(a.grpcServer)
	grpcMetrics.InitializeMetrics(a.grpcServer)

	outboxOpts := []outbox.Option{
		outbox.WithLogger(a.logger.WithField("layer", "outbox")),
		outbox.WithMetrics(metrics.NewOutboxMetrics(registerer)),
		outbox.WithPollInterval(a.cfg.OutboxPollInterval),
		outbox.WithBatchSize(a.cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(a.cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(a.cfg.OutboxRetryDelay),
	}
	if a.publishers.dlq != nil {
		outboxOpts = append(outboxOpts, outbox.WithDLQPublisher(a.publishers.dlq))
	}
	a.outboxWorker = outbox.NewWorker(a.deps.outboxRepo, a.publishers.events, outboxOpts...)

	a.cleanupWorker = idempotency.NewCleanupWorker(a.deps.idempotencyRepo,
		idempotency.WithLogger(a.logger.WithField("layer", "idempotency-cleanup")),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(registerer)),
		idempotency.WithInterval(a.cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(a.cfg.IdempotencyCleanupBatchSize),
	)

	var err error
	if a.apiListener, err = net.Listen("tcp", a.cfg.HTTPAddr); err != nil {
		return fmt.Errorf("listen http %s: %w", a.cfg.HTTPAddr, err)
	}
	if a.grpcListener, err = net.Listen("tcp", a.cfg.GRPCAddr); err != nil {
		return fmt.Errorf("listen grpc %s: %w", a.cfg.GRPCAddr, err)
	}
	if a.metricsListener, err = net.Listen("tcp", a.cfg.MetricsAddr); err != nil {
		return fmt.Errorf("listen metrics %s: %w", a.cfg.MetricsAddr, err)
	}
	return nil
}

// HTTPAddr возвращает фактический адрес REST API.
func (a *App) HTTPAddr() string { return a.apiListener.Addr().String() }

// GRPCAddr возвращает фактический адрес gRPC health-сервера.
func (a *App) GRPCAddr() string { return a.grpcListener.Addr().String() }

// MetricsAddr возвращает фактический адрес сервера метрик и health checks.
func (a *App) MetricsAddr() string { return a.metricsListener.Addr().String() }

// Run запускает серверы и воркеры. Ошибка любого из них останавливает остальные.
// После отмены ctx возвращает ctx.Err().
func (a *App) Run(ctx context.Context) error {
	defer a.release()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Infof("REST API слушает %s", a.HTTPAddr())
		return serveHTTP(a.apiServer, a.apiListener)
	})
	g.Go(func() error {
		a.logger.Infof("метрики доступны по адресу %s/metrics", a.MetricsAddr())
		return serveHTTP(a.metricsServer, a.metricsListener)
	})
	g.Go(func() error {
		a.logger.Infof("gRPC health слушает %s", a.GRPCAddr())
		a.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		a.grpcHealth.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_SERVING)
		if err := a.grpcServer.Serve(a.grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.outboxWorker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.cleanupWorker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("получен сигнал остановки, останавливаем серверы")
		a.shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// shutdown останавливает серверы в пределах ShutdownTimeout.
func (a *App) shutdown() {
	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.grpcHealth.Shutdown()

	stopped := make(chan struct{})
	go func() {
		a.grpcServer.GracefulStop()
		close(stopped)
	}()

	shutdownHTTP(ctx, a.apiServer, a.logger)
	shutdownHTTP(ctx, a.metricsServer, a.logger)

	select {
	case <-stopped:
	case <-ctx.Done():
		a.logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		a.grpcServer.Stop()
	}
}

// release освобождает сокеты и подключения. Повторный вызов безопасен.
func (a *App) release() {
	for _, lis := range []net.Listener{a.apiListener, a.grpcListener, a.metricsListener} {
		if lis != nil {
			_ = lis.Close()
		}
	}
	a.publishers.Close(a.logger)
	a.publishers = eventPublishers{}
	if err := a.deps.Close(); err != nil {
		a.logger.WithError(err).Warn("failed to close storage")
	}
}

func newMetricsMux(healthHandler *health.Handler, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

func registerGRPCMetrics(registerer prometheus.Registerer, logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registerer.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(ctx context.Context, srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
