// Package events publishes reservation changes to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/manacoffee/pkg/booking"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeKind = "topic"

	RoutingKeyReservationCreated = "reservation.created"
	RoutingKeyReservationDeleted = "reservation.deleted"

	contentTypeJSON = "application/json"
	statusOK        = "ok"
	publishTimeout  = 5 * time.Second
)

var errEmptyExchange = errors.New("events: exchange name is required")

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// ReservationEvent is the message body.
type ReservationEvent struct {
	Type          string    `json:"type"`
	ReservationID int64     `json:"reservationId"`
	Date          string    `json:"date,omitempty"`
	TimeSlot      string    `json:"timeSlot,omitempty"`
	Guests        int64     `json:"guests,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Publisher implements booking.OperationLogger and forwards committed reservation
// changes. Publish failures are logged and never reach the caller.
type Publisher struct {
	connection *amqp.Connection
	channel    Channel
	exchange   string
	logger     *zap.Logger
	now        func() time.Time
}

// Dial connects to the broker at url and declares a durable topic exchange.
func Dial(url string, exchange string, logger *zap.Logger) (*Publisher, error) {
	connection, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	channel, err := connection.Channel()
	if err != nil {
		_ = connection.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	publisher, err := NewPublisher(channel, exchange, logger)
	if err != nil {
		_ = channel.Close()
		_ = connection.Close()
		return nil, err
	}
	publisher.connection = connection
	return publisher, nil
}

// NewPublisher declares exchange on channel and returns a publisher bound to it.
func NewPublisher(channel Channel, exchange string, logger *zap.Logger) (*Publisher, error) {
	if exchange == "" {
		return nil, errEmptyExchange
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := channel.ExchangeDeclare(exchange, ExchangeKind, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}
	return &Publisher{
		channel:  channel,
		exchange: exchange,
		logger:   logger.Named("events"),
		now:      time.Now,
	}, nil
}

// LogOperation publishes successful reservation creations and deletions.
func (publisher *Publisher) LogOperation(ctx context.Context, entry booking.OperationLog) {
	if entry.Status != statusOK {
		return
	}
	var routingKey string
	switch entry.Operation {
	case booking.OperationCreateReservation:
		routingKey = RoutingKeyReservationCreated
	case booking.OperationDeleteReservation:
		routingKey = RoutingKeyReservationDeleted
	default:
		return
	}
	event := ReservationEvent{
		Type:          routingKey,
		ReservationID: entry.ReservationID.Int64(),
		Date:          entry.Slot.Date.String(),
		TimeSlot:      entry.Slot.TimeSlot.String(),
		Guests:        entry.Guests.Int64(),
		OccurredAt:    publisher.now().UTC(),
	}
	if err := publisher.publish(ctx, routingKey, event); err != nil {
		publisher.logger.Warn("event publish failed",
			zap.String("routing_key", routingKey),
			zap.Int64("reservation_id", event.ReservationID),
			zap.Error(err),
		)
	}
}

func (publisher *Publisher) publish(ctx context.Context, routingKey string, event ReservationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err = publisher.channel.PublishWithContext(publishCtx, publisher.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    event.OccurredAt,
		Type:         routingKey,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	publisher.logger.Debug("event published", zap.String("routing_key", routingKey), zap.Int64("reservation_id", event.ReservationID))
	return nil
}

// Close releases the channel and, when the publisher dialled it, the connection.
func (publisher *Publisher) Close() error {
	var closeErr error
	if publisher.channel != nil {
		closeErr = publisher.channel.Close()
	}
	if publisher.connection != nil {
		closeErr = errors.Join(closeErr, publisher.connection.Close())
	}
	return closeErr
}
