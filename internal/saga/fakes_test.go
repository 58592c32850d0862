package saga

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/voluntr/media-workers/internal/dedup"
	"github.com/voluntr/media-workers/internal/logging"
	"github.com/voluntr/media-workers/internal/messages"
	"github.com/voluntr/media-workers/internal/ops"
)

type fakeStore struct {
	mu      sync.Mutex
	ent     *Entity
	findErr error
	saveErr []error
	saves   int
	deletes int
}

func (s *fakeStore) Kind() string { return "event" }

func (s *fakeStore) Find(ctx context.Context, id int64) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.ent == nil || s.ent.ID != id {
		return nil, ErrNotFound
	}
	return cloneEntity(s.ent), nil
}

func (s *fakeStore) Save(ctx context.Context, e *Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saveErr) > 0 {
		err := s.saveErr[0]
		s.saveErr = s.saveErr[1:]
		if err != nil {
			return err
		}
	}
	s.saves++
	e.Version++
	s.ent = cloneEntity(e)
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ent == nil || s.ent.ID != id {
		return ErrNotFound
	}
	s.ent = nil
	s.deletes++
	return nil
}

func cloneEntity(e *Entity) *Entity {
	c := *e
	c.Assets = make([]Asset, len(e.Assets))
	copy(c.Assets, e.Assets)
	return &c
}

type fakeBlobs struct {
	mu      sync.Mutex
	puts    []string // filenames in upload order
	putErr  map[string]error
	delErr  map[string]error
	deleted []string
}

func (b *fakeBlobs) Put(ctx context.Context, data []byte, contentType, filename string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.putErr[filename]; err != nil {
		return "", err
	}
	b.puts = append(b.puts, filename)
	return "https://cdn.test/media/" + filename, nil
}

func (b *fakeBlobs) Delete(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.delErr[url]; err != nil {
		return err
	}
	b.deleted = append(b.deleted, url)
	return nil
}

type fakeTemp struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
	delErr  map[string]error
}

func newFakeTemp(paths ...string) *fakeTemp {
	t := &fakeTemp{files: make(map[string][]byte)}
	for _, p := range paths {
		t.files[p] = []byte("bytes of " + p)
	}
	return t
}

func (t *fakeTemp) Read(path string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, ok := t.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, path)
	}
	return data, nil
}

func (t *fakeTemp) Delete(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.delErr[path]; err != nil {
		return err
	}
	delete(t.files, path)
	t.deleted = append(t.deleted, path)
	return nil
}

type fakePub struct {
	mu          sync.Mutex
	pending     []messages.Pending
	uploaded    []messages.Uploaded
	failed      []messages.Failed
	pendingErr  error
	uploadedErr error
	failedErr   error
}

func (p *fakePub) Pending(ctx context.Context, m messages.Pending) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pendingErr != nil {
		return p.pendingErr
	}
	p.pending = append(p.pending, m)
	return nil
}

func (p *fakePub) Uploaded(ctx context.Context, m messages.Uploaded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uploadedErr != nil {
		return p.uploadedErr
	}
	p.uploaded = append(p.uploaded, m)
	return nil
}

func (p *fakePub) Failed(ctx context.Context, m messages.Failed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failedErr != nil {
		return p.failedErr
	}
	p.failed = append(p.failed, m)
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []messages.UploadFailedNotice
}

func (n *fakeNotifier) UploadFailed(ctx context.Context, kind string, entityID int64, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, messages.UploadFailedNotice{EntityKind: kind, EntityID: entityID, Reason: reason})
}

type fixture struct {
	store    *fakeStore
	blobs    *fakeBlobs
	temp     *fakeTemp
	pub      *fakePub
	guard    *dedup.MemoryGuard
	notifier *fakeNotifier
	engine   *Engine
}

func newFixture(t *testing.T, ent *Entity, maxRetry int) *fixture {
	t.Helper()

	f := &fixture{
		store:    &fakeStore{ent: ent},
		blobs:    &fakeBlobs{putErr: map[string]error{}, delErr: map[string]error{}},
		pub:      &fakePub{},
		guard:    dedup.NewMemoryGuard(),
		notifier: &fakeNotifier{},
	}
	f.temp = newFakeTemp()
	f.temp.delErr = map[string]error{}
	if ent != nil {
		for _, a := range ent.Assets {
			if a.TempPath != "" {
				f.temp.files[a.TempPath] = []byte("bytes of " + a.TempPath)
			}
		}
	}

	engine, err := NewEngine(Config{
		Store:     f.store,
		Blobs:     f.blobs,
		Temp:      f.temp,
		Publisher: f.pub,
		Guard:     f.guard,
		Notifier:  f.notifier,
		Metrics:   ops.MustNewMetrics(prometheus.NewRegistry()),
		Log:       logging.NoopLogger{},
		MaxRetry:  maxRetry,
	})
	require.NoError(t, err)
	f.engine = engine
	return f
}

func pendingAsset(id int64, name string) Asset {
	return Asset{
		ID:          id,
		Status:      StatusPendingUpload,
		TempPath:    "staged/" + name,
		ContentType: "image/jpeg",
		FileName:    name,
	}
}

func uploadedAsset(id int64, name, url string) Asset {
	return Asset{
		ID:          id,
		Status:      StatusUploaded,
		URL:         url,
		ContentType: "image/jpeg",
		FileName:    name,
	}
}
