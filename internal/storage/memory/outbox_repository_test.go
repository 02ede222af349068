package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	repo := NewOutboxRepository()
	ctx := context.Background()

	first, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":1}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := repo.Enqueue(domain.OutboxMessage{AggregateType: domain.AggregateTypeOrder, AggregateID: "2"})
	require.NoError(t, err)

	pending, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID, pending[0].ID)
	require.Equal(t, second.ID, pending[1].ID)

	limited, err := repo.PullPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	repo := NewOutboxRepository()
	ctx := context.Background()

	sent, err := repo.Enqueue(domain.OutboxMessage{AggregateType: domain.AggregateTypeOrder})
	require.NoError(t, err)
	failed, err := repo.Enqueue(domain.OutboxMessage{AggregateType: domain.AggregateTypeOrder})
	require.NoError(t, err)

	require.NoError(t, repo.MarkSent(ctx, sent.ID))
	require.NoError(t, repo.MarkFailed(ctx, failed.ID))
	require.ErrorIs(t, repo.MarkFailed(ctx, "missing"), domain.ErrOutboxPublish)

	require.Empty(t, repo.AllPending())
}

func TestOutboxRepository_Stats(t *testing.T) {
	repo := NewOutboxRepository()
	ctx := context.Background()

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
	require.True(t, stats.OldestPendingAt.IsZero())

	msg, err := repo.Enqueue(domain.OutboxMessage{AggregateType: domain.AggregateTypeOrder})
	require.NoError(t, err)
	_, err = repo.Enqueue(domain.OutboxMessage{AggregateType: domain.AggregateTypeOrder})
	require.NoError(t, err)
	require.NoError(t, repo.MarkSent(ctx, msg.ID))

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)
	require.False(t, stats.OldestPendingAt.IsZero())
}
