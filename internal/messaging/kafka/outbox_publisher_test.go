package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	publishedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		env, err := ParseEnvelope(val)
		if err != nil {
			return err
		}
		event, err := ParseOrderEvent(env)
		if err != nil {
			return err
		}
		if env.ID != "outbox-1" || env.EventType != domain.EventOrderCreated || event.OrderID != 7 || !env.PublishedAt.Equal(publishedAt) {
			return sarama.ErrInvalidMessage
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, log.WithField("component", "kafka-outbox-publisher-test")), "")
	publisher.now = func() time.Time { return publishedAt }
	require.Equal(t, TopicOrderEvents, publisher.Topic())

	msg, err := domain.NewOrderOutboxMessage(domain.EventOrderCreated, domain.OrderEvent{OrderID: 7, CustomerID: 1})
	require.NoError(t, err)
	msg.ID = "outbox-1"

	require.NoError(t, publisher.Publish(msg))
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, nil), TopicDeadLetterQueue)
	require.Equal(t, TopicDeadLetterQueue, publisher.Topic())

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "234",
		EventType:     domain.EventOrderDeleted,
		Payload:       []byte(`{"order_id":234}`),
	})
	require.Error(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	require.Error(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}))
}
