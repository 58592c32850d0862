package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/voluntr/media-workers/internal/messages"
)

const publishTimeout = 5 * time.Second

// Publisher serializes payloads to JSON and publishes them on the media
// exchange. Safe for concurrent use; amqp channels are not, so publishes
// are serialized with a mutex.
type Publisher struct {
	mu sync.Mutex
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := NewChannel(conn)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

// PublishJSON publishes v on the media exchange under routingKey. Messages
// are persistent so they survive a broker restart.
func (p *Publisher) PublishJSON(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx,
		Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", routingKey, err)
	}
	return nil
}

// SagaPublisher binds a Publisher to one entity kind's queue set. It is the
// outcome-publishing collaborator handed to the saga engine.
type SagaPublisher struct {
	pub  *Publisher
	kind string
}

func NewSagaPublisher(pub *Publisher, kind string) *SagaPublisher {
	return &SagaPublisher{pub: pub, kind: kind}
}

func (s *SagaPublisher) Pending(ctx context.Context, m messages.Pending) error {
	return s.pub.PublishJSON(ctx, PendingQueue(s.kind), m)
}

func (s *SagaPublisher) Uploaded(ctx context.Context, m messages.Uploaded) error {
	return s.pub.PublishJSON(ctx, UploadedQueue(s.kind), m)
}

func (s *SagaPublisher) Failed(ctx context.Context, m messages.Failed) error {
	return s.pub.PublishJSON(ctx, FailedQueue(s.kind), m)
}
