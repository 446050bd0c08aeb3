// Package events publishes booking lifecycle events to Kafka. Publishing is
// best effort: a broker outage degrades to a warning log and never fails the
// booking operation that triggered it.
package events

import (
	"context"
	"time"

	"helloev/pkg/kafka"
	kafka_config "helloev/pkg/kafka/config"
	"helloev/pkg/logger"
	"helloev/pkg/model"
)

const (
	TopicBookingReserved = "booking.reserved"
	TopicBookingReleased = "booking.released"

	EventTypeReserved      = "booking.reserved.v1"
	EventTypeReleased      = "booking.released.v1"
	EventTypeForceReleased = "booking.force_released.v1"

	schemaVersion = "1"
	sourceService = "bookings"

	publishTimeout = 5 * time.Second
)

// BookingEvent is the wire payload for both topics. Events are keyed by
// station id so all events for one station land on one partition in order.
type BookingEvent struct {
	BookingID  string    `json:"booking_id"`
	StationID  string    `json:"station_id"`
	UserID     string    `json:"user_id,omitempty"`
	Time       string    `json:"time"`
	Ordinal    int       `json:"ordinal"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	PublishReserved(ctx context.Context, booking *model.CurrentBooking, userID string)
	PublishReleased(ctx context.Context, eventType string, event BookingEvent)
	Close() error
}

type kafkaPublisher struct {
	reserved *kafka.Producer
	released *kafka.Producer
	log      *logger.Logger
}

// NewPublisher builds a Kafka-backed publisher, or a no-op one when no
// brokers are configured.
func NewPublisher(cfg *kafka_config.Config, log *logger.Logger) (Publisher, error) {
	if !cfg.Enabled() {
		log.Info("Kafka brokers not configured, booking events disabled")
		return &noopPublisher{}, nil
	}

	reserved, err := kafka.NewProducer(cfg, TopicBookingReserved)
	if err != nil {
		return nil, err
	}
	released, err := kafka.NewProducer(cfg, TopicBookingReleased)
	if err != nil {
		reserved.Close()
		return nil, err
	}

	log.Info("Booking event publisher initialized",
		"topics", []string{TopicBookingReserved, TopicBookingReleased},
	)
	return &kafkaPublisher{
		reserved: reserved,
		released: released,
		log:      log,
	}, nil
}

func (p *kafkaPublisher) PublishReserved(ctx context.Context, booking *model.CurrentBooking, userID string) {
	event := BookingEvent{
		BookingID:  booking.BookingID,
		StationID:  booking.StationID,
		UserID:     userID,
		Time:       booking.Time,
		Ordinal:    booking.Ordinal,
		OccurredAt: time.Now().UTC(),
	}
	p.publish(ctx, p.reserved, EventTypeReserved, event)
}

func (p *kafkaPublisher) PublishReleased(ctx context.Context, eventType string, event BookingEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	p.publish(ctx, p.released, eventType, event)
}

func (p *kafkaPublisher) publish(ctx context.Context, producer *kafka.Producer, eventType string, event BookingEvent) {
	msg, err := kafka.NewMessage().
		WithKey(event.StationID).
		WithValue(event).
		WithEventType(eventType).
		WithSchemaVersion(schemaVersion).
		WithSource(sourceService).
		Build()
	if err != nil {
		p.log.Error("Failed to build booking event", "event_type", eventType, "error", err)
		return
	}

	// Detached from the request context: the HTTP response must not wait on
	// or fail with the broker.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := producer.Publish(publishCtx, msg); err != nil {
		p.log.Warn("Failed to publish booking event",
			"event_type", eventType,
			"booking_id", event.BookingID,
			"station_id", event.StationID,
			"error", err,
		)
		return
	}

	p.log.Debug("Booking event published",
		"event_type", eventType,
		"booking_id", event.BookingID,
	)
}

func (p *kafkaPublisher) Close() error {
	errReserved := p.reserved.Close()
	errReleased := p.released.Close()
	if errReserved != nil {
		return errReserved
	}
	return errReleased
}

type noopPublisher struct{}

func (*noopPublisher) PublishReserved(context.Context, *model.CurrentBooking, string) {}
func (*noopPublisher) PublishReleased(context.Context, string, BookingEvent)          {}
func (*noopPublisher) Close() error                                                   { return nil }
