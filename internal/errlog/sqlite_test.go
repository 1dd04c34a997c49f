package errlog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gallerybot/internal/domain"
)

func openTestLog(t *testing.T, limit int) *SQLiteLog {
	t.Helper()
	l, err := OpenSQLite(filepath.Join(t.TempDir(), "logs", "errors.db"), limit)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestSQLiteLogKeepsLastN(t *testing.T) {
	l := openTestLog(t, 5)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 8; i++ {
		if err := l.Append(ctx, domain.ErrorEntry{At: base.Add(time.Duration(i) * time.Minute), Message: fmt.Sprintf("err %d", i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := l.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	if got[0].Message != "err 3" || got[4].Message != "err 7" {
		t.Fatalf("entries = %+v", got)
	}
	if !got[4].At.Equal(base.Add(7 * time.Minute)) {
		t.Fatalf("at = %v", got[4].At)
	}

	last2, _ := l.Recent(ctx, 2)
	if len(last2) != 2 || last2[0].Message != "err 6" {
		t.Fatalf("Recent(2) = %+v", last2)
	}
}

func TestSQLiteLogClear(t *testing.T) {
	l := openTestLog(t, 0)
	ctx := context.Background()
	_ = l.Append(ctx, domain.ErrorEntry{Message: "  boom  "})

	got, _ := l.Recent(ctx, 0)
	if len(got) != 1 || got[0].Message != "boom" {
		t.Fatalf("entries = %+v", got)
	}
	if err := l.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, _ = l.Recent(ctx, 0)
	if len(got) != 0 {
		t.Fatalf("entries after clear = %+v", got)
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("  ", 10); err == nil {
		t.Fatal("expected error for empty path")
	}
}
