/**
 * @description
 * This package provides a producer for publishing notification events to
 * RabbitMQ. The escrow service only emits the notification contract ("send
 * this event with this payload"); template rendering and actual delivery are
 * handled downstream by the notification consumers.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// NotificationEvent is the envelope for every event published by this service.
type NotificationEvent struct {
	EventType string      `json:"event_type"`
	Recipient string      `json:"recipient"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	PublishNotification(ctx context.Context, eventType, recipient string, payload interface{}) error
	Close()
}

// EventProducer holds the RabbitMQ connection and channel for publishing.
type EventProducer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *slog.Logger
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is
// unavailable at startup. Notifications are best-effort, so the service
// keeps running and only logs the skipped publishes.
type EventProducerFallback struct {
	Logger *slog.Logger
}

func (p *EventProducerFallback) Publish(ctx context.Context, routingKey string, body interface{}) error {
	p.Logger.Warn("notification publish skipped, broker unavailable", "routing_key", routingKey)
	return nil
}

func (p *EventProducerFallback) PublishNotification(ctx context.Context, eventType, recipient string, payload interface{}) error {
	p.Logger.Warn("notification publish skipped, broker unavailable", "event_type", eventType)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer connects to RabbitMQ and declares the durable topic
// exchange all notification events are published to.
func NewEventProducer(amqpURL, exchange string, logger *slog.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Bounded dial timeout so startup does not hang indefinitely.
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

// Publish sends a message to the notification exchange with a routing key.
func (p *EventProducer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.channel.PublishWithContext(
		publishCtx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Body:         jsonBody,
			Timestamp:    time.Now().UTC(),
		},
	)
}

// PublishNotification wraps a payload in the standard notification envelope
// and publishes it with the event type as routing key.
func (p *EventProducer) PublishNotification(ctx context.Context, eventType, recipient string, payload interface{}) error {
	event := NotificationEvent{
		EventType: eventType,
		Recipient: recipient,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	if err := p.Publish(ctx, eventType, event); err != nil {
		return err
	}
	p.logger.Info("notification event published", "event_type", eventType)
	return nil
}

// Close shuts down the channel and connection.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
