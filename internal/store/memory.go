package store

import (
	"context"
	"sync"

	"gallerybot/internal/domain"
)

// MemoryBackend keeps the last saved document in memory.
type MemoryBackend struct {
	mu      sync.Mutex
	doc     *domain.Document
	saves   int
	saveErr error
}

func NewMemoryBackend(doc *domain.Document) *MemoryBackend {
	if doc == nil {
		doc = domain.NewDocument()
	}
	return &MemoryBackend{doc: doc.Clone()}
}

func (b *MemoryBackend) Load(ctx context.Context) (*domain.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doc.Clone(), nil
}

func (b *MemoryBackend) Save(ctx context.Context, doc *domain.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.doc = doc.Clone()
	b.saves++
	return nil
}

// SetSaveErr makes every following Save fail with err until reset with nil.
func (b *MemoryBackend) SetSaveErr(err error) {
	b.mu.Lock()
	b.saveErr = err
	b.mu.Unlock()
}

// Saved returns a copy of the last saved document and the number of saves.
func (b *MemoryBackend) Saved() (*domain.Document, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doc.Clone(), b.saves
}
