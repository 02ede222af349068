package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/outbox"
)

// eventPublishers определяет, куда outbox-воркер отправляет события и сообщения DLQ.
type eventPublishers struct {
	events   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
	producer *kafka.Producer
}

// initPublishers подключает Kafka, если заданы брокеры.
// Без брокеров или при ошибке подключения события пишутся в лог, DLQ не используется.
func initPublishers(cfg Config, logger *log.Entry) eventPublishers {
	fallback := eventPublishers{
		events: outbox.NewLogPublisher(logger.WithField("component", "outbox-log-publisher")),
	}
	if len(cfg.KafkaBrokers) == 0 {
		return fallback
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return fallback
	}

	logger.WithFields(log.Fields{
		"brokers":     cfg.KafkaBrokers,
		"order_topic": cfg.KafkaOrderTopic,
		"dlq_topic":   cfg.KafkaDLQTopic,
	}).Info("kafka producer initialized")

	return eventPublishers{
		events:   kafka.NewOutboxPublisher(producer, cfg.KafkaOrderTopic),
		dlq:      kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic),
		producer: producer,
	}
}

// Close закрывает Kafka producer, если он был создан.
func (p eventPublishers) Close(logger *log.Entry) {
	if p.producer == nil {
		return
	}
	if err := p.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
