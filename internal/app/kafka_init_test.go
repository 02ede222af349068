package app

import (
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/outbox"
)

func TestInitPublishers_NoBrokersUsesLogPublisher(t *testing.T) {
	publishers := initPublishers(DefaultConfig(), log.WithField("test", "kafka"))

	if _, ok := publishers.events.(*outbox.LogPublisher); !ok {
		t.Fatalf("expected log publisher, got %T", publishers.events)
	}
	if publishers.dlq != nil {
		t.Fatal("dlq publisher must be nil without kafka")
	}
	if publishers.producer != nil {
		t.Fatal("producer must be nil without kafka")
	}

	// Не должно паниковать.
	publishers.Close(log.WithField("test", "kafka"))
}

func TestInitPublishers_UnreachableBrokersFallBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KafkaBrokers = []string{"invalid-broker:9999"}

	publishers := initPublishers(cfg, log.WithField("test", "kafka"))

	if _, ok := publishers.events.(*outbox.LogPublisher); !ok {
		t.Fatalf("expected log publisher fallback, got %T", publishers.events)
	}
	if publishers.producer != nil {
		t.Fatal("expected nil producer on error")
	}
}

func TestInitPublishers_TopicsFromConfig(t *testing.T) {
	producer, err := kafka.NewProducer([]string{"localhost:9092"})
	if err != nil {
		t.Skipf("kafka is not available for integration test: %v", err)
	}
	_ = producer.Close()

	cfg := DefaultConfig()
	cfg.KafkaBrokers = []string{"localhost:9092"}
	cfg.KafkaOrderTopic = "orders-test"
	cfg.KafkaDLQTopic = "orders-test-dlq"

	publishers := initPublishers(cfg, log.WithField("test", "kafka"))
	defer publishers.Close(log.WithField("test", "kafka"))

	events, ok := publishers.events.(*kafka.OutboxTopicPublisher)
	if !ok {
		t.Fatalf("expected kafka publisher, got %T", publishers.events)
	}
	if events.Topic() != "orders-test" {
		t.Fatalf("unexpected events topic: %s", events.Topic())
	}
	dlq, ok := publishers.dlq.(*kafka.OutboxTopicPublisher)
	if !ok || dlq.Topic() != "orders-test-dlq" {
		t.Fatalf("unexpected dlq publisher: %#v", publishers.dlq)
	}
}
