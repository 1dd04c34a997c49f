package service

import (
	"context"
	"log/slog"
	"time"

	"gallerybot/internal/domain"
	"gallerybot/internal/store"
)

// DocumentStore is the transactional view of the shared document.
type DocumentStore interface {
	Transact(ctx context.Context, keys []store.Key, fn func(tx *store.Tx) error) error
	View(ctx context.Context, fn func(doc *domain.Document) error) error
}

type ErrorLog interface {
	Append(ctx context.Context, e domain.ErrorEntry) error
	Recent(ctx context.Context, n int) ([]domain.ErrorEntry, error)
	Clear(ctx context.Context) error
}

// ContentCache keeps local copies of gallery content. Failures are never
// fatal to the operation that triggered them.
type ContentCache interface {
	Cache(ctx context.Context, pairKey, handle string) (ref string, err error)
	Release(ctx context.Context, ref string) error
}

func nowFunc(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// recordError writes msg to the operational error log, falling back to the
// process log when the error log itself fails.
func recordError(ctx context.Context, log ErrorLog, logger *slog.Logger, now time.Time, msg string) {
	logger = loggerOrDefault(logger)
	if log == nil {
		logger.Warn(msg)
		return
	}
	if err := log.Append(ctx, domain.ErrorEntry{At: now, Message: msg}); err != nil {
		logger.Error("error log append failed", "err", err, "message", msg)
	}
}

func lookupUser(doc *domain.Document, id string) (domain.Identity, error) {
	u, ok := doc.Users[id]
	if !ok {
		return domain.Identity{}, domain.ErrUnknownUser
	}
	return u, nil
}
