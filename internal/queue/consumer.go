package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/voluntr/media-workers/internal/logging"
)

// Handler processes one delivery body. A nil return acks the delivery.
// A ProcessingError controls requeue-vs-dead-letter; any other error is
// requeued so the queue's delivery limit can dead-letter poison messages.
type Handler func(ctx context.Context, body []byte) error

const reconnectDelay = 5 * time.Second

// Consumer runs competing consumers against declared queues. Each worker
// holds its own channel and recreates it when the broker drops it.
type Consumer struct {
	url string
	log logging.Logger

	wg sync.WaitGroup
}

func NewConsumer(url string, log logging.Logger) *Consumer {
	return &Consumer{url: url, log: log}
}

// Run starts `workers` goroutines consuming queueName with handler. It
// returns immediately; workers stop when ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, queueName string, workers int, handler Handler) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, queueName, i+1, handler)
	}
}

// Wait blocks until every worker started with Run has returned.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

func (c *Consumer) worker(ctx context.Context, queueName string, n int, handler Handler) {
	defer c.wg.Done()
	log := c.log.With("queue", queueName, "worker", n)

	var conn *amqp.Connection
	var ch *amqp.Channel
	defer func() {
		if ch != nil {
			ch.Close()
		}
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "shutting down")
			return
		default:
		}

		if ch == nil || ch.IsClosed() {
			if conn != nil {
				conn.Close()
			}
			var err error
			conn, err = NewClient(c.url)
			if err != nil {
				log.Error(ctx, "failed to connect", "error", err)
				sleepCtx(ctx, reconnectDelay)
				continue
			}
			ch, err = NewChannel(conn)
			if err != nil {
				log.Error(ctx, "failed to open channel", "error", err)
				sleepCtx(ctx, reconnectDelay)
				continue
			}
			// One message in flight per worker; concurrency comes from
			// running more workers, not from prefetch.
			if err := ch.Qos(1, 0, false); err != nil {
				log.Error(ctx, "failed to set qos", "error", err)
				ch.Close()
				ch = nil
				continue
			}
		}

		msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
		if err != nil {
			log.Error(ctx, "failed to start consuming", "error", err)
			ch.Close()
			ch = nil
			sleepCtx(ctx, reconnectDelay)
			continue
		}
		log.Info(ctx, "worker started, waiting for messages")

		open := true
		for open {
			select {
			case <-ctx.Done():
				log.Info(ctx, "shutting down")
				return
			case d, ok := <-msgs:
				if !ok {
					log.Warn(ctx, "delivery channel closed, recreating")
					ch = nil
					open = false
					sleepCtx(ctx, 2*time.Second)
					continue
				}
				c.dispatch(ctx, log, d, handler)
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, log logging.Logger, d amqp.Delivery, handler Handler) {
	err := handler(ctx, d.Body)
	if err == nil {
		if err := d.Ack(false); err != nil {
			log.Error(ctx, "failed to ack delivery", "error", err)
		}
		return
	}

	log.Error(ctx, "error processing message", "error", err)
	if err := d.Nack(false, requeueDecision(err)); err != nil {
		log.Error(ctx, "failed to nack delivery", "error", err)
	}
}

// requeueDecision maps a handler error to the Nack requeue flag. Requeued
// deliveries burn the quorum queue's delivery limit and dead-letter once
// it is exhausted, so unknown errors default to requeue.
func requeueDecision(err error) bool {
	var procErr ProcessingError
	if errors.As(err, &procErr) {
		return procErr.Requeue
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
