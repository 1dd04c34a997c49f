package service

import (
	"context"
	"strings"
	"time"

	"gallerybot/internal/domain"
	"gallerybot/internal/store"
)

type IdentityService struct {
	Store DocumentStore
	Now   func() time.Time
}

// Register creates the identity on first contact and refreshes its handle
// afterwards. Friends and aliases are never touched. A blank handle is
// replaced by "user_<id>" so every identity has something to display.
func (s *IdentityService) Register(ctx context.Context, id, handle string) (domain.Identity, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Identity{}, false, domain.NewValidationError(map[string]string{"id": "required"})
	}
	handle = normalizeHandle(handle)
	if handle == "" {
		handle = fallbackHandle(id)
	}
	now := nowFunc(s.Now)

	var (
		out     domain.Identity
		created bool
	)
	err := s.Store.Transact(ctx, []store.Key{store.UserKey(id)}, func(tx *store.Tx) error {
		u, ok := tx.User(id)
		if ok && u.Handle == handle {
			out = u
			return nil
		}
		if !ok {
			u = domain.Identity{ID: id, Friends: []string{}, RegisteredAt: now().UTC()}
			created = true
		}
		u.Handle = handle
		out = u
		return tx.PutUser(u)
	})
	if err != nil {
		return domain.Identity{}, false, err
	}
	return out, created, nil
}

// ResolveByHandle matches case-insensitively, ignoring a leading "@". Handles
// are not unique; the earliest registered identity wins.
func (s *IdentityService) ResolveByHandle(ctx context.Context, handle string) (domain.Identity, error) {
	handle = normalizeHandle(handle)
	if handle == "" {
		return domain.Identity{}, domain.ErrUnknownHandle
	}

	var out domain.Identity
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		u, ok := resolveHandle(doc, handle)
		if !ok {
			return domain.ErrUnknownHandle
		}
		out = u.Clone()
		return nil
	})
	return out, err
}

func (s *IdentityService) Get(ctx context.Context, id string) (domain.Identity, error) {
	var out domain.Identity
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		u, err := lookupUser(doc, id)
		out = u.Clone()
		return err
	})
	return out, err
}

func (s *IdentityService) IsBanned(ctx context.Context, id string) (bool, error) {
	var banned bool
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		banned = doc.IsBanned(id)
		return nil
	})
	return banned, err
}

func fallbackHandle(id string) string {
	return "user_" + id
}

func normalizeHandle(h string) string {
	return strings.TrimPrefix(strings.TrimSpace(h), "@")
}

func resolveHandle(doc *domain.Document, handle string) (domain.Identity, bool) {
	var (
		best  domain.Identity
		found bool
	)
	for _, u := range doc.Users {
		if u.Handle == "" || !strings.EqualFold(u.Handle, handle) {
			continue
		}
		if !found || registeredBefore(u, best) {
			best, found = u, true
		}
	}
	return best, found
}

func registeredBefore(a, b domain.Identity) bool {
	if !a.RegisteredAt.Equal(b.RegisteredAt) {
		return a.RegisteredAt.Before(b.RegisteredAt)
	}
	return a.ID < b.ID
}
