// Package store owns the shared document and serializes writers per logical
// entity. Transactions on disjoint entities run concurrently and never lose
// each other's writes; transactions on the same entity queue on its lock.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gallerybot/internal/domain"
)

// Backend persists the whole document. Save must be atomic: after a failed
// Save the previously saved document is still the one Load returns.
type Backend interface {
	Load(ctx context.Context) (*domain.Document, error)
	Save(ctx context.Context, doc *domain.Document) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

var ErrUndeclaredKey = errors.New("write to undeclared key")

type Options struct {
	Shards int
	Logger *slog.Logger
}

type Store struct {
	backend Backend
	locks   *shardedLocks
	logger  *slog.Logger

	mu  sync.RWMutex
	doc *domain.Document
}

func Open(ctx context.Context, backend Backend, opts Options) (*Store, error) {
	if backend == nil {
		return nil, errors.New("store backend required")
	}
	doc, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		doc = domain.NewDocument()
	}
	doc.Normalize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		locks:   newShardedLocks(opts.Shards),
		logger:  logger,
		doc:     doc,
	}, nil
}

// Transact runs fn with exclusive access to keys and commits its writes.
// If fn fails nothing is applied. If persisting fails the in-memory document
// is reverted and a *domain.PersistenceError is returned.
func (s *Store) Transact(ctx context.Context, keys []Key, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.lock(keys)
	defer unlock()

	tx := newTx(s, keys)
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(ctx, tx)
}

func (s *Store) commit(ctx context.Context, tx *Tx) error {
	if len(tx.order) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	undo := make([]func(), 0, len(tx.order))
	for _, k := range tx.order {
		undo = append(undo, apply(s.doc, k, tx.writes[k]))
	}
	if err := s.backend.Save(ctx, s.doc); err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		s.logger.Error("store: save failed, write reverted", "err", err, "keys", len(tx.order))
		return domain.NewPersistenceError(err)
	}
	return nil
}

// View runs fn against the live document under a read lock. fn must neither
// mutate nor retain doc.
func (s *Store) View(ctx context.Context, fn func(doc *domain.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.doc)
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot(ctx context.Context) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone(), nil
}

func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.backend.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func apply(doc *domain.Document, k Key, w write) (undo func()) {
	switch k.Kind {
	case KindUser:
		prev, had := doc.Users[k.ID]
		if w.deleted {
			delete(doc.Users, k.ID)
		} else {
			doc.Users[k.ID] = w.value.(domain.Identity)
		}
		return func() { restore(doc.Users, k.ID, prev, had) }
	case KindGallery:
		prev, had := doc.Galleries[k.ID]
		if w.deleted {
			delete(doc.Galleries, k.ID)
		} else {
			doc.Galleries[k.ID] = w.value.(domain.Gallery)
		}
		return func() { restore(doc.Galleries, k.ID, prev, had) }
	case KindInvite:
		prev, had := doc.Invites[k.ID]
		if w.deleted {
			delete(doc.Invites, k.ID)
		} else {
			doc.Invites[k.ID] = w.value.(domain.Invite)
		}
		return func() { restore(doc.Invites, k.ID, prev, had) }
	case KindChatRequest:
		prev, had := doc.ChatRequests[k.ID]
		if w.deleted {
			delete(doc.ChatRequests, k.ID)
		} else {
			doc.ChatRequests[k.ID] = w.value.(domain.ChatRequest)
		}
		return func() { restore(doc.ChatRequests, k.ID, prev, had) }
	case KindActiveChat:
		prev, had := doc.ActiveChats[k.ID]
		if w.deleted {
			delete(doc.ActiveChats, k.ID)
		} else {
			doc.ActiveChats[k.ID] = w.value.(string)
		}
		return func() { restore(doc.ActiveChats, k.ID, prev, had) }
	case KindBan:
		had := doc.IsBanned(k.ID)
		setBanned(doc, k.ID, !w.deleted)
		return func() { setBanned(doc, k.ID, had) }
	}
	return func() {}
}

func restore[V any](m map[string]V, id string, prev V, had bool) {
	if had {
		m[id] = prev
		return
	}
	delete(m, id)
}

func setBanned(doc *domain.Document, id string, banned bool) {
	for i, b := range doc.BannedUsers {
		if b == id {
			if !banned {
				doc.BannedUsers = append(doc.BannedUsers[:i:i], doc.BannedUsers[i+1:]...)
			}
			return
		}
	}
	if banned {
		doc.BannedUsers = append(doc.BannedUsers, id)
	}
}
