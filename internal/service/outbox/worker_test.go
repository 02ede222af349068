package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("component", "outbox-test")
}

func newTestWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	base := []Option{
		WithLogger(quietLogger()),
		WithMetrics(metrics.NewOutboxMetrics(prometheus.NewRegistry())),
		WithRetryBaseDelay(0),
	}
	return NewWorker(repo, publisher, append(base, options...)...)
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-1",
				AggregateType: domain.AggregateTypeOrder,
				AggregateID:   "1",
				EventType:     domain.EventOrderStatusChanged,
				Payload:       []byte(`{"order_id":1,"status_id":2}`),
			},
		},
	}
	publisher := &stubPublisher{}

	worker := newTestWorker(repo, publisher, WithMaxAttempts(3))

	require.Equal(t, 1, worker.ProcessOnce(context.Background()))
	require.Equal(t, []string{"msg-1"}, repo.sent())
	require.Empty(t, repo.failed())
	require.Equal(t, 1, publisher.calls())
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-2",
				AggregateType: domain.AggregateTypeOrder,
				AggregateID:   "2",
				EventType:     domain.EventOrderDeleted,
				Payload:       []byte(`{"order_id":2}`),
			},
		},
	}
	publisher := &stubPublisher{err: errors.New("publish failed")}
	dlqPublisher := &stubPublisher{}

	worker := newTestWorker(repo, publisher, WithDLQPublisher(dlqPublisher), WithMaxAttempts(3))

	worker.ProcessOnce(context.Background())

	require.Equal(t, 3, publisher.calls())
	require.Empty(t, repo.sent())
	require.Equal(t, []string{"msg-2"}, repo.failed())
	require.Equal(t, 1, dlqPublisher.calls())

	var letter DeadLetter
	require.NoError(t, json.Unmarshal(dlqPublisher.last().Payload, &letter))
	require.Equal(t, "msg-2", letter.OutboxID)
	require.Equal(t, domain.EventOrderDeleted, letter.EventType)
	require.Contains(t, letter.PublishError, "publish failed")
	require.JSONEq(t, `{"order_id":2}`, string(letter.Payload))
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{ID: "msg-3", AggregateType: domain.AggregateTypeOrder, AggregateID: "3", EventType: domain.EventOrderUpdated, Payload: []byte(`{}`)},
		},
	}
	publisher := &stubPublisher{
		sequenceErrors: []error{
			errors.New("attempt 1"),
			errors.New("attempt 2"),
			nil,
		},
	}

	worker := newTestWorker(repo, publisher, WithMaxAttempts(3))
	worker.ProcessOnce(context.Background())

	require.Equal(t, 3, publisher.calls())
	require.Len(t, repo.sent(), 1)
	require.Empty(t, repo.failed())
}

func TestWorker_ProcessOnce_CanceledDuringBackoffLeavesMessagePending(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{ID: "msg-4", AggregateType: domain.AggregateTypeOrder, AggregateID: "4", EventType: domain.EventOrderCreated, Payload: []byte(`{}`)},
		},
	}
	publisher := &stubPublisher{err: errors.New("broker down")}

	ctx, cancel := context.WithCancel(context.Background())
	publisher.onPublish = cancel

	worker := newTestWorker(repo, publisher, WithMaxAttempts(5), WithRetryBaseDelay(time.Second))
	worker.ProcessOnce(ctx)

	require.Equal(t, 1, publisher.calls())
	require.Empty(t, repo.sent())
	require.Empty(t, repo.failed())
}

func TestWorker_RetryBackoff(t *testing.T) {
	t.Parallel()

	worker := newTestWorker(&stubOutboxRepo{}, &stubPublisher{},
		WithRetryBaseDelay(10*time.Millisecond),
		WithMaxAttempts(4),
	)

	b := worker.backoff()
	for _, want := range []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond} {
		delay, stop := b.Next()
		require.False(t, stop)
		require.Equal(t, want, delay)
	}
	_, stop := b.Next()
	require.True(t, stop, "backoff must stop after maxAttempts-1 retries")
}

func TestWorker_PublishesOrderEventsFromMemoryStore(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	svc := orders.NewService(store,
		orders.WithLogger(quietLogger()),
		orders.WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
	)

	ctx := context.Background()
	orderID, err := svc.CreateOrder(ctx, orders.CreateOrderInput{
		CustomerID:     1,
		DeliveryTypeID: 1,
		Items:          []domain.ItemRequest{{ProductID: 1, Quantity: 1}},
		Address:        &domain.Address{Street: "Lenina", City: "Kazan", House: "1", ZipCode: "420000"},
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteOrder(ctx, orderID))

	publisher := &stubPublisher{}
	worker := newTestWorker(store.Outbox(), publisher)

	require.Equal(t, 2, worker.ProcessOnce(ctx))
	require.Equal(t, []string{domain.EventOrderCreated, domain.EventOrderDeleted}, publisher.eventTypes())
	require.Zero(t, worker.ProcessOnce(ctx))

	stats, err := store.Outbox().Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := newTestWorker(&stubOutboxRepo{}, &stubPublisher{}, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_Run_DisabledWithoutPublisher(t *testing.T) {
	t.Parallel()

	worker := newTestWorker(&stubOutboxRepo{}, nil)
	worker.Run(context.Background())
}

func TestLogPublisher(t *testing.T) {
	t.Parallel()

	publisher := NewLogPublisher(quietLogger())
	require.NoError(t, publisher.Publish(domain.OutboxMessage{ID: "x", EventType: domain.EventOrderCreated}))
}

type stubOutboxRepo struct {
	mu        sync.Mutex
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(context.Context) (domain.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

func (s *stubOutboxRepo) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sentIDs...)
}

func (s *stubOutboxRepo) failed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.failedIDs...)
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	onPublish      func()
	published      []domain.OutboxMessage
}

func (s *stubPublisher) Publish(event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.published = append(s.published, event)
	if s.onPublish != nil {
		s.onPublish()
	}
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}

	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}

func (s *stubPublisher) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.published))
	for _, event := range s.published {
		out = append(out, event.EventType)
	}
	return out
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)
