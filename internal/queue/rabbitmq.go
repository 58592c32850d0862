// Package queue wraps RabbitMQ: topology declaration, a JSON publisher and
// a competing-consumer loop with channel recovery.
package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// Exchange carries all media saga traffic, routed by queue name.
	Exchange = "media"
	// DeadLetterExchange receives deliveries that exhausted the broker's
	// delivery limit or were rejected outright.
	DeadLetterExchange = "media.dlx"

	// NotificationsQueue receives owner-facing notices (terminal upload
	// failures). Consumed by the notification service, which is not part
	// of this repo.
	NotificationsQueue = "notifications"
)

// PendingQueue, UploadedQueue and FailedQueue name the per-kind queues.
func PendingQueue(kind string) string  { return fmt.Sprintf("media.%s.pending", kind) }
func UploadedQueue(kind string) string { return fmt.Sprintf("media.%s.uploaded", kind) }
func FailedQueue(kind string) string   { return fmt.Sprintf("media.%s.failed", kind) }

func NewClient(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

func NewChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, nil
}

// DeclareTopology sets up the media exchange, the dead-letter exchange and
// one quorum queue (plus its dead-letter queue) per name. Quorum queues
// track redeliveries; after deliveryLimit rejections the broker routes the
// message to the dead-letter queue instead of redelivering it again.
func DeclareTopology(ch *amqp.Channel, queueNames []string, deliveryLimit int) error {
	if err := ch.ExchangeDeclare(Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	if err := ch.ExchangeDeclare(DeadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", DeadLetterExchange, err)
	}

	for _, name := range queueNames {
		args := amqp.Table{
			"x-queue-type":           "quorum",
			"x-delivery-limit":       int32(deliveryLimit),
			"x-dead-letter-exchange": DeadLetterExchange,
		}
		if _, err := ch.QueueDeclare(name, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
		if err := ch.QueueBind(name, name, Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", name, err)
		}

		dlq := name + ".dlq"
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, name, DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", dlq, err)
		}
	}

	if _, err := ch.QueueDeclare(NotificationsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", NotificationsQueue, err)
	}
	if err := ch.QueueBind(NotificationsQueue, NotificationsQueue, Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", NotificationsQueue, err)
	}
	return nil
}
