// Package events publishes billing domain events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Routing keys for published events.
const (
	RoutingKeyPaymentRecorded = "payment.recorded"
)

// PaymentRecorded is the payload published after a payment commits.
type PaymentRecorded struct {
	PaymentID       int64     `json:"payment_id"`
	SubscriptionID  int64     `json:"subscription_id"`
	ClientID        int64     `json:"client_id"`
	Amount          string    `json:"amount"`
	PaymentDate     string    `json:"payment_date"`
	NextPaymentDate string    `json:"next_payment_date"`
	PreviousStatus  string    `json:"previous_status"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// Producer publishes JSON events to a topic exchange.
type Producer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// NewProducer dials RabbitMQ and declares the exchange.
func NewProducer(amqpURL, exchange string) (*Producer, error) {
	conn, err := amqp091.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	// durable topic exchange, not auto-deleted
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Producer{conn: conn, channel: channel, exchange: exchange}, nil
}

// PublishPaymentRecorded sends a payment.recorded event.
func (p *Producer) PublishPaymentRecorded(ctx context.Context, evt PaymentRecorded) error {
	return p.publish(ctx, RoutingKeyPaymentRecorded, evt)
}

func (p *Producer) publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Producer) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
