package saga

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/voluntr/media-workers/internal/dedup"
	"github.com/voluntr/media-workers/internal/logging"
	"github.com/voluntr/media-workers/internal/messages"
	"github.com/voluntr/media-workers/internal/ops"
	"github.com/voluntr/media-workers/internal/queue"
)

// HandlePending performs one upload attempt for the entity named by msg.
//
// The broker delivers at least once and in no particular order, so the
// attempt is guarded by the idempotency key (kind, entityId, retryCount)
// before any side effect runs. Per-asset uploads are independent: one
// asset failing never aborts its siblings. The entity is persisted once
// after the loop; successfully uploaded assets are marked UPLOADED there
// so a retried attempt only re-attempts what actually failed.
func (e *Engine) HandlePending(ctx context.Context, msg messages.Pending) error {
	log := e.log.With("entity_id", msg.EntityID, "retry", msg.RetryCount)
	key := dedup.Key{Kind: e.kind, EntityID: msg.EntityID, RetryCount: msg.RetryCount}

	fresh, err := e.guard.TryMark(ctx, key)
	if err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	if !fresh {
		log.Info(ctx, "duplicate delivery, skipping")
		e.metrics.DedupHits.WithLabelValues(e.kind).Inc()
		return nil
	}

	ent, err := e.store.Find(ctx, msg.EntityID)
	if errors.Is(err, ErrNotFound) {
		log.Info(ctx, "entity gone, nothing to do")
		e.metrics.Attempts.WithLabelValues(e.kind, ops.OutcomeNoop).Inc()
		return nil
	}
	if err != nil {
		return e.failUnexpected(ctx, log, key, msg, nil, fmt.Errorf("load entity: %w", err))
	}

	pending := ent.PendingAssets()
	if len(pending) == 0 {
		// Either a stale redelivery of a finished attempt, or a previous
		// attempt uploaded everything and crashed before announcing it.
		if ent.AllUploaded() && !ent.Approved {
			m := messages.Uploaded{EntityID: ent.ID, UploadedURLs: ent.UploadedURLs()}
			if perr := e.pub.Uploaded(ctx, m); perr != nil {
				return e.releaseAndFail(ctx, log, key, fmt.Errorf("publish uploaded: %w", perr))
			}
			log.Info(ctx, "all assets already uploaded, republished outcome")
		} else {
			log.Info(ctx, "no pending assets, nothing to do")
		}
		e.metrics.Attempts.WithLabelValues(e.kind, ops.OutcomeNoop).Inc()
		return nil
	}

	uploaded := make(map[int64]string)
	var cleanupPaths []string
	var failures []string
	skipped := 0

	for _, a := range pending {
		url, aerr := e.uploadAsset(ctx, a)
		switch {
		case aerr == nil:
			uploaded[a.ID] = url
			a.URL = url
			a.Status = StatusUploaded
			cleanupPaths = append(cleanupPaths, a.TempPath)
			a.TempPath = ""
			e.metrics.Uploads.WithLabelValues(e.kind, "success").Inc()
		case errors.Is(aerr, fs.ErrNotExist):
			// The staged file is gone: another path already handled this
			// asset. Not a failure, not a success.
			log.Warn(ctx, "staged file missing, treating as already handled",
				"asset_id", a.ID, "temp_path", a.TempPath)
			skipped++
		default:
			// The staging file stays in place so the retried attempt can
			// re-read it.
			log.Error(ctx, "asset upload failed", "asset_id", a.ID, "error", aerr)
			failures = append(failures, fmt.Sprintf("asset %d: %v", a.ID, aerr))
			e.metrics.Uploads.WithLabelValues(e.kind, "failure").Inc()
		}
	}

	// Checkpoint: one save after the loop, independent of the outcome
	// decision. Successful assets are already UPLOADED with their staging
	// reference cleared.
	if serr := e.store.Save(ctx, ent); serr != nil {
		if errors.Is(serr, ErrConflict) {
			// Same retryCount will be redelivered; this must not count
			// against the retry budget, so release the dedup mark.
			if uerr := e.guard.Unmark(ctx, key); uerr != nil {
				log.Error(ctx, "failed to release dedup mark", "error", uerr)
			}
			e.metrics.Attempts.WithLabelValues(e.kind, ops.OutcomeConflict).Inc()
			return queue.ProcessingError{Err: fmt.Errorf("concurrent modification, retrying same attempt: %w", serr), Requeue: true}
		}
		return e.failUnexpected(ctx, log, key, msg, bestKnownURLs(ent, uploaded), fmt.Errorf("save entity: %w", serr))
	}

	// Staged files of uploaded assets are only removed once the cleared
	// references are durable, so a conflict above never strands an asset
	// whose bytes are gone.
	for _, p := range cleanupPaths {
		if derr := e.temp.Delete(p); derr != nil {
			log.Warn(ctx, "staged file cleanup failed", "temp_path", p, "error", derr)
		}
	}

	if len(failures) == 0 {
		if skipped > 0 {
			log.Info(ctx, "some assets already handled elsewhere, no outcome published", "skipped", skipped)
			e.metrics.Attempts.WithLabelValues(e.kind, ops.OutcomeNoop).Inc()
			return nil
		}
		m := messages.Uploaded{EntityID: ent.ID, UploadedURLs: ent.UploadedURLs()}
		if perr := e.pub.Uploaded(ctx, m); perr != nil {
			return e.releaseAndFail(ctx, log, key, fmt.Errorf("publish uploaded: %w", perr))
		}
		log.Info(ctx, "all assets uploaded", "assets", len(uploaded))
		e.metrics.Attempts.WithLabelValues(e.kind, ops.OutcomeSuccess).Inc()
		return nil
	}

	cause := fmt.Errorf("upload failed: %s", strings.Join(failures, "; "))
	if perr := e.applyPolicy(ctx, log, msg, ent, bestKnownURLs(ent, uploaded), cause); perr != nil {
		return e.releaseAndFail(ctx, log, key, perr)
	}
	return nil
}

// uploadAsset runs one asset's pipeline: read staged bytes, normalize,
// ship to the blob store.
func (e *Engine) uploadAsset(ctx context.Context, a *Asset) (string, error) {
	data, err := e.temp.Read(a.TempPath)
	if err != nil {
		return "", err
	}
	if e.normalize != nil {
		data, err = e.normalize(data)
		if err != nil {
			return "", fmt.Errorf("normalize: %w", err)
		}
	}
	url, err := e.blobs.Put(ctx, data, a.ContentType, a.FileName)
	if err != nil {
		return "", fmt.Errorf("blob put: %w", err)
	}
	return url, nil
}

// applyPolicy decides retry vs terminal failure for a failed or partial
// attempt (the retry/compensation policy). On the terminal path the
// remaining staged files are removed; compensation deletes the entity, so
// nothing would ever read them again.
func (e *Engine) applyPolicy(ctx context.Context, log logging.Logger, msg messages.Pending, ent *Entity, known map[int64]string, cause error) error {
	switch decideNext(msg.RetryCount, e.maxRetry) {
	case decisionRetry:
		next := messages.Pending{EntityID: msg.EntityID, RetryCount: msg.RetryCount + 1}
		if err := e.pub.Pending(ctx, next); err != nil {
			return fmt.Errorf("republish pending: %w", err)
		}
		log.Warn(ctx, "attempt failed, retry scheduled", "next_retry", next.RetryCount, "error", cause)
		e.metrics.Retries.WithLabelValues(e.kind).Inc()
		e.metrics.Attempts.WithLabelValues(e.kind, ops.OutcomeRetry).Inc()
		return nil
	default:
		if ent != nil {
			for _, a := range ent.PendingAssets() {
				if derr := e.temp.Delete(a.TempPath); derr != nil {
					log.Warn(ctx, "staged file cleanup failed", "temp_path", a.TempPath, "error", derr)
				}
			}
		}
		m := messages.Failed{
			EntityID:     msg.EntityID,
			UploadedURLs: known,
			Error:        cause.Error(),
			RetryCount:   msg.RetryCount,
		}
		if err := e.pub.Failed(ctx, m); err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		log.Error(ctx, "retry budget exhausted, failure published", "error", cause)
		e.metrics.Attempts.WithLabelValues(e.kind, ops.OutcomeFailure).Inc()
		return nil
	}
}

// failUnexpected routes an unexpected error through the retry policy and
// then rethrows it, so the broker's own redelivery budget burns alongside
// the application-level one.
func (e *Engine) failUnexpected(ctx context.Context, log logging.Logger, key dedup.Key, msg messages.Pending, known map[int64]string, cause error) error {
	if known == nil {
		known = map[int64]string{}
	}
	if perr := e.applyPolicy(ctx, log, msg, nil, known, cause); perr != nil {
		return e.releaseAndFail(ctx, log, key, errors.Join(cause, perr))
	}
	return cause
}

// releaseAndFail drops the dedup mark so the redelivered attempt is not
// silently swallowed, then propagates err to the consumer.
func (e *Engine) releaseAndFail(ctx context.Context, log logging.Logger, key dedup.Key, err error) error {
	if uerr := e.guard.Unmark(ctx, key); uerr != nil {
		log.Error(ctx, "failed to release dedup mark", "error", uerr)
	}
	return err
}

// bestKnownURLs merges this attempt's uploads with URLs recorded on the
// entity by earlier attempts, so compensation can find every blob.
func bestKnownURLs(ent *Entity, uploaded map[int64]string) map[int64]string {
	out := make(map[int64]string)
	if ent != nil {
		for id, url := range ent.UploadedURLs() {
			out[id] = url
		}
	}
	for id, url := range uploaded {
		out[id] = url
	}
	return out
}
