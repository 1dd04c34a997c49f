package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gallerybot/internal/domain"
	"gallerybot/internal/store"
)

type fixture struct {
	store    *store.Store
	backend  *store.MemoryBackend
	errs     *memErrorLog
	cache    *stubCache
	now      time.Time
	identity *IdentityService
	friends  *FriendsService
	gallery  *GalleryService
	chat     *ChatService
	admin    *AdminService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := store.NewMemoryBackend(nil)
	st, err := store.Open(context.Background(), backend, store.Options{Shards: 8})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	f := &fixture{
		store:   st,
		backend: backend,
		errs:    &memErrorLog{},
		cache:   &stubCache{},
		now:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.identity = &IdentityService{Store: st, Now: clock}
	f.friends = &FriendsService{Store: st, Now: clock}
	f.gallery = &GalleryService{
		Store:  st,
		Cache:  f.cache,
		Errors: f.errs,
		Now:    clock,
		Sleep:  func(ctx context.Context, d time.Duration) error { return nil },
	}
	f.chat = &ChatService{Store: st, Now: clock}
	f.admin = &AdminService{Store: st, Errors: f.errs, Now: clock}
	return f
}

func (f *fixture) tick() { f.now = f.now.Add(time.Minute) }

func (f *fixture) register(t *testing.T, id, handle string) {
	t.Helper()
	if _, _, err := f.identity.Register(context.Background(), id, handle); err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
	f.tick()
}

func (f *fixture) befriend(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	target, err := f.identity.Get(ctx, b)
	if err != nil {
		t.Fatalf("Get(%s): %v", b, err)
	}
	if _, err := f.friends.SendInvite(ctx, a, target.Handle); err != nil {
		t.Fatalf("SendInvite(%s->%s): %v", a, b, err)
	}
	if _, err := f.friends.AcceptInvite(ctx, b, a); err != nil {
		t.Fatalf("AcceptInvite(%s): %v", b, err)
	}
}

func (f *fixture) doc(t *testing.T) *domain.Document {
	t.Helper()
	doc, err := f.store.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return doc
}

type memErrorLog struct {
	mu      sync.Mutex
	entries []domain.ErrorEntry
}

func (l *memErrorLog) Append(ctx context.Context, e domain.ErrorEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *memErrorLog) Recent(ctx context.Context, n int) ([]domain.ErrorEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	return append([]domain.ErrorEntry(nil), l.entries[len(l.entries)-n:]...), nil
}

func (l *memErrorLog) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	return nil
}

func (l *memErrorLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type stubCache struct {
	mu         sync.Mutex
	cacheErr   error
	releaseErr error
	cached     []string
	released   []string
}

func (c *stubCache) Cache(ctx context.Context, pairKey, handle string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cacheErr != nil {
		return "", c.cacheErr
	}
	ref := "files/" + pairKey + "/" + handle
	c.cached = append(c.cached, ref)
	return ref, nil
}

func (c *stubCache) Release(ctx context.Context, ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, ref)
	return c.releaseErr
}

func assertKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("err = %v, want kind %v", err, kind)
	}
}
