package messaging

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

var _ ports.HostNoticePublisher = (*RabbitMQBroker)(nil)

func (rmq *RabbitMQBroker) PublishHostNotice(ctx context.Context, evt ports.HostNoticeEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= 0 {
		return ctx.Err()
	}

	_, err = rmq.breaker.Execute(func() (interface{}, error) {
		err := rmq.ch.PublishWithContext(
			ctx,
			"",        // default exchange
			rmq.queue, // routing key == queue name
			false,     // mandatory
			false,     // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
			},
		)
		return nil, err
	})
	return err
}
