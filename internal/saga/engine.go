package saga

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voluntr/media-workers/internal/dedup"
	"github.com/voluntr/media-workers/internal/logging"
	"github.com/voluntr/media-workers/internal/messages"
	"github.com/voluntr/media-workers/internal/ops"
	"github.com/voluntr/media-workers/internal/queue"
)

// Normalizer rewrites asset bytes before upload (e.g. downscaling
// oversized images). May be nil.
type Normalizer func(data []byte) ([]byte, error)

// Config wires one engine instance. All fields except Normalize are
// required.
type Config struct {
	Store     EntityStore
	Blobs     BlobStore
	Temp      TempStore
	Publisher Publisher
	Guard     dedup.Guard
	Notifier  Notifier
	Metrics   *ops.Metrics
	Log       logging.Logger
	MaxRetry  int
	Normalize Normalizer
}

// Engine runs both saga roles for one entity kind: the upload
// orchestrator (HandlePending) and the status reconciler (HandleUploaded,
// HandleFailed).
type Engine struct {
	kind      string
	store     EntityStore
	blobs     BlobStore
	temp      TempStore
	pub       Publisher
	guard     dedup.Guard
	notifier  Notifier
	metrics   *ops.Metrics
	log       logging.Logger
	maxRetry  int
	normalize Normalizer
}

func NewEngine(cfg Config) (*Engine, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("saga: Store is required")
	case cfg.Blobs == nil:
		return nil, fmt.Errorf("saga: Blobs is required")
	case cfg.Temp == nil:
		return nil, fmt.Errorf("saga: Temp is required")
	case cfg.Publisher == nil:
		return nil, fmt.Errorf("saga: Publisher is required")
	case cfg.Guard == nil:
		return nil, fmt.Errorf("saga: Guard is required")
	case cfg.Notifier == nil:
		return nil, fmt.Errorf("saga: Notifier is required")
	case cfg.Metrics == nil:
		return nil, fmt.Errorf("saga: Metrics is required")
	case cfg.Log == nil:
		return nil, fmt.Errorf("saga: Log is required")
	case cfg.MaxRetry < 0:
		return nil, fmt.Errorf("saga: MaxRetry must be >= 0, got %d", cfg.MaxRetry)
	}

	return &Engine{
		kind:      cfg.Store.Kind(),
		store:     cfg.Store,
		blobs:     cfg.Blobs,
		temp:      cfg.Temp,
		pub:       cfg.Publisher,
		guard:     cfg.Guard,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		log:       cfg.Log.With("kind", cfg.Store.Kind()),
		maxRetry:  cfg.MaxRetry,
		normalize: cfg.Normalize,
	}, nil
}

// Kind returns the entity kind this engine serves.
func (e *Engine) Kind() string { return e.kind }

// PendingHandler adapts HandlePending to a queue.Handler. Malformed
// payloads are dead-lettered immediately; redelivering them cannot help.
func (e *Engine) PendingHandler() queue.Handler {
	return func(ctx context.Context, body []byte) error {
		var m messages.Pending
		if err := json.Unmarshal(body, &m); err != nil {
			return queue.ProcessingError{Err: fmt.Errorf("failed to parse pending message: %w", err), Requeue: false}
		}
		return e.HandlePending(ctx, m)
	}
}

// UploadedHandler adapts HandleUploaded to a queue.Handler.
func (e *Engine) UploadedHandler() queue.Handler {
	return func(ctx context.Context, body []byte) error {
		var m messages.Uploaded
		if err := json.Unmarshal(body, &m); err != nil {
			return queue.ProcessingError{Err: fmt.Errorf("failed to parse uploaded message: %w", err), Requeue: false}
		}
		return e.HandleUploaded(ctx, m)
	}
}

// FailedHandler adapts HandleFailed to a queue.Handler.
func (e *Engine) FailedHandler() queue.Handler {
	return func(ctx context.Context, body []byte) error {
		var m messages.Failed
		if err := json.Unmarshal(body, &m); err != nil {
			return queue.ProcessingError{Err: fmt.Errorf("failed to parse failed message: %w", err), Requeue: false}
		}
		return e.HandleFailed(ctx, m)
	}
}
