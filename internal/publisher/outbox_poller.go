// Package publisher relays outbox events to Kafka.
package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
)

const batchSize = 100

// MessageWriter is the part of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// OutboxPoller publishes unprocessed events in creation order and marks each
// one processed after Kafka accepted it. Delivery is at least once.
type OutboxPoller struct {
	eventTick time.Duration
	store     repository.OutboxStore
	writer    MessageWriter
	log       *slog.Logger
}

func NewOutboxPoller(store repository.OutboxStore, writer MessageWriter, eventTick time.Duration, log *slog.Logger) *OutboxPoller {
	if eventTick <= 0 {
		eventTick = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &OutboxPoller{eventTick: eventTick, store: store, writer: writer, log: log}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.store.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.Error("failed to fetch events", "err", err)
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.log.Error("failed to publish event", "event_id", event.ID, "err", err)
			// keep order per aggregate: retry the rest on the next tick
			return
		}
		if err := p.store.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Error("failed to mark event as processed", "event_id", event.ID, "err", err)
			continue
		}
		p.log.Debug("event published", "event_id", event.ID, "event_type", event.EventType)
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *domain.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id for ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
