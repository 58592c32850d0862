package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/voluntr/media-workers/internal/messages"
	"github.com/voluntr/media-workers/internal/queue"
)

// HandleUploaded applies a success outcome to entity state. Idempotent
// under redelivery: already-uploaded assets are left untouched and the
// entity is saved only when something actually changed.
func (e *Engine) HandleUploaded(ctx context.Context, msg messages.Uploaded) error {
	log := e.log.With("entity_id", msg.EntityID)

	ent, err := e.store.Find(ctx, msg.EntityID)
	if errors.Is(err, ErrNotFound) {
		log.Info(ctx, "entity gone, ignoring success outcome")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load entity: %w", err)
	}

	changed := false
	for id, url := range msg.UploadedURLs {
		a := ent.Asset(id)
		if a == nil {
			log.Warn(ctx, "success outcome names unknown asset", "asset_id", id)
			continue
		}
		if a.Status != StatusPendingUpload {
			continue
		}
		a.URL = url
		a.Status = StatusUploaded
		if a.TempPath != "" {
			if derr := e.temp.Delete(a.TempPath); derr != nil {
				log.Warn(ctx, "staged file cleanup failed", "temp_path", a.TempPath, "error", derr)
			}
			a.TempPath = ""
		}
		changed = true
	}

	if ent.AllUploaded() && !ent.Approved {
		ent.Approved = true
		changed = true
		e.metrics.Approvals.WithLabelValues(e.kind).Inc()
	}

	if !changed {
		log.Info(ctx, "success outcome already applied")
		return nil
	}

	if err := e.store.Save(ctx, ent); err != nil {
		if errors.Is(err, ErrConflict) {
			return queue.ProcessingError{Err: fmt.Errorf("concurrent modification applying success: %w", err), Requeue: true}
		}
		return fmt.Errorf("save entity: %w", err)
	}
	log.Info(ctx, "success outcome applied", "approved", ent.Approved)
	return nil
}

// HandleFailed performs the compensating rollback: delete every blob any
// attempt uploaded, then delete the entity itself. Each blob deletion is
// attempted independently; a failure on one never stops the rest.
// Redelivery is safe: a second pass finds nothing left to delete.
func (e *Engine) HandleFailed(ctx context.Context, msg messages.Failed) error {
	log := e.log.With("entity_id", msg.EntityID, "retry", msg.RetryCount)

	for id, url := range msg.UploadedURLs {
		if derr := e.blobs.Delete(ctx, url); derr != nil {
			log.Error(ctx, "rollback blob delete failed", "asset_id", id, "url", url, "error", derr)
		}
	}

	// Remove any staged files still referenced before the rows go away.
	ent, err := e.store.Find(ctx, msg.EntityID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("load entity: %w", err)
	}
	if ent != nil {
		for i := range ent.Assets {
			if p := ent.Assets[i].TempPath; p != "" {
				if derr := e.temp.Delete(p); derr != nil {
					log.Warn(ctx, "staged file cleanup failed", "temp_path", p, "error", derr)
				}
			}
		}
	}

	err = e.store.Delete(ctx, msg.EntityID)
	if errors.Is(err, ErrNotFound) {
		log.Info(ctx, "entity already compensated")
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}

	e.metrics.Compensations.WithLabelValues(e.kind).Inc()
	log.Warn(ctx, "entity rolled back after terminal upload failure", "error", msg.Error)

	// Fire-and-forget; the notifier logs its own delivery problems.
	e.notifier.UploadFailed(ctx, e.kind, msg.EntityID, msg.Error)
	return nil
}
