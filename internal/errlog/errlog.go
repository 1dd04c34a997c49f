// Package errlog keeps a bounded, append-only log of operational errors.
// Only the most recent Limit entries are retained.
package errlog

import (
	"context"
	"strings"

	"gallerybot/internal/domain"
)

const DefaultLimit = 50

type Log interface {
	Append(ctx context.Context, e domain.ErrorEntry) error
	// Recent returns up to n of the newest entries, oldest first. n <= 0
	// returns everything retained.
	Recent(ctx context.Context, n int) ([]domain.ErrorEntry, error)
	Clear(ctx context.Context) error
	Close() error
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return n
}

func clean(msg string) string {
	return strings.TrimSpace(msg)
}
