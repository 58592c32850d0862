// Package saga implements the media upload saga: an orchestrator that
// ships staged files to the blob store, a reconciler that applies upload
// outcomes to entity state, and the retry/compensation policy both share.
// The engine is generic over the entity kind; per-kind Postgres adapters
// live under internal/repos.
package saga

import (
	"context"
	"errors"

	"github.com/voluntr/media-workers/internal/messages"
)

var (
	// ErrNotFound reports that the entity is gone. Handlers treat it as
	// "already handled elsewhere" and return cleanly.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict reports a concurrent modification caught by the
	// version check. The attempt is redelivered with the same retry
	// count and does not burn the retry budget.
	ErrConflict = errors.New("entity version conflict")
)

type AssetStatus string

const (
	StatusPendingUpload AssetStatus = "PENDING_UPLOAD"
	StatusUploaded      AssetStatus = "UPLOADED"
)

// Asset is one uploadable media item attached to an entity.
//
// Invariant: StatusUploaded implies URL is set and TempPath is empty;
// StatusPendingUpload implies TempPath is set until cleared.
type Asset struct {
	ID          int64
	Status      AssetStatus
	TempPath    string
	URL         string
	ContentType string
	FileName    string
}

// Entity is the saga's view of an event, post or profile-picture owner:
// an id, an optimistic-concurrency version, a visibility flag and the
// attached assets.
type Entity struct {
	ID       int64
	Version  int64
	Approved bool
	Assets   []Asset
}

// PendingAssets returns the assets still awaiting upload: status pending
// and staging path not yet cleared.
func (e *Entity) PendingAssets() []*Asset {
	var out []*Asset
	for i := range e.Assets {
		a := &e.Assets[i]
		if a.Status == StatusPendingUpload && a.TempPath != "" {
			out = append(out, a)
		}
	}
	return out
}

// Asset returns the asset with the given id, or nil.
func (e *Entity) Asset(id int64) *Asset {
	for i := range e.Assets {
		if e.Assets[i].ID == id {
			return &e.Assets[i]
		}
	}
	return nil
}

// AllUploaded reports whether every asset has reached StatusUploaded.
func (e *Entity) AllUploaded() bool {
	for i := range e.Assets {
		if e.Assets[i].Status != StatusUploaded {
			return false
		}
	}
	return true
}

// UploadedURLs collects the blob URLs of all uploaded assets.
func (e *Entity) UploadedURLs() map[int64]string {
	out := make(map[int64]string)
	for i := range e.Assets {
		if e.Assets[i].Status == StatusUploaded && e.Assets[i].URL != "" {
			out[e.Assets[i].ID] = e.Assets[i].URL
		}
	}
	return out
}

// EntityStore adapts one entity kind to the engine.
type EntityStore interface {
	// Kind names the entity kind ("event", "post", "profile"). It keys
	// queue names, dedup rows and metrics labels.
	Kind() string

	// Find loads the entity with its assets. Returns ErrNotFound if it
	// is gone.
	Find(ctx context.Context, id int64) (*Entity, error)

	// Save persists the entity and its assets, guarded by the version
	// column. Returns ErrConflict when the row changed concurrently.
	Save(ctx context.Context, e *Entity) error

	// Delete removes the entity outright (compensation). Returns
	// ErrNotFound when there was nothing left to delete.
	Delete(ctx context.Context, id int64) error
}

// BlobStore is durable object storage. Both operations are idempotent
// from the saga's point of view.
type BlobStore interface {
	Put(ctx context.Context, data []byte, contentType, filename string) (string, error)
	Delete(ctx context.Context, url string) error
}

// TempStore is the staging area written by the submission path. Read maps
// a missing file to fs.ErrNotExist.
type TempStore interface {
	Read(path string) ([]byte, error)
	Delete(path string) error
}

// Publisher emits the saga's messages onto the entity kind's queues.
type Publisher interface {
	Pending(ctx context.Context, m messages.Pending) error
	Uploaded(ctx context.Context, m messages.Uploaded) error
	Failed(ctx context.Context, m messages.Failed) error
}

// Notifier informs the owning user about a terminal upload failure.
// Implementations are fire-and-forget: they log delivery problems and
// never return them.
type Notifier interface {
	UploadFailed(ctx context.Context, kind string, entityID int64, reason string)
}
