// Package messaging delivers host notices over RabbitMQ. The kiosk never
// publishes directly: notices are staged in the outbox table and the relay
// pushes them through this broker.
package messaging

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/config"
)

type RabbitMQBroker struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	breaker *gobreaker.CircuitBreaker
}

// NewRabbitMQBroker dials the broker and declares the notice queue. The
// declare is idempotent, so kiosk and relay can both start first.
func NewRabbitMQBroker(amqpURL, queue string) (*RabbitMQBroker, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	durable := true
	if _, err := ch.QueueDeclare(queue, durable, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQBroker{
		conn:    conn,
		ch:      ch,
		queue:   queue,
		breaker: config.NewCircuitBreaker("RabbitMQ-Notices"),
	}, nil
}

// IsHealthy reports whether the broker connection is still open.
func (rmq *RabbitMQBroker) IsHealthy() bool {
	return rmq.conn != nil && !rmq.conn.IsClosed()
}

func (rmq *RabbitMQBroker) Close() error {
	if rmq.ch != nil {
		if err := rmq.ch.Close(); err != nil {
			return err
		}
	}
	if rmq.conn != nil {
		return rmq.conn.Close()
	}
	return nil
}
