package errlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gallerybot/internal/domain"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS error_log (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	at_unix INTEGER NOT NULL,
	message TEXT NOT NULL
)`

type SQLiteLog struct {
	db    *sql.DB
	limit int
}

// OpenSQLite opens or creates the log database at path.
func OpenSQLite(path string, limit int) (*SQLiteLog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("error log path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create error log dir: %w", err)
	}
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create error_log: %w", err)
	}
	return &SQLiteLog{db: db, limit: limitOrDefault(limit)}, nil
}

func (l *SQLiteLog) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *SQLiteLog) Append(ctx context.Context, e domain.ErrorEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO error_log (at_unix, message) VALUES (?, ?)`,
		e.At.UTC().UnixNano(), clean(e.Message),
	); err != nil {
		return fmt.Errorf("insert error entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM error_log WHERE id NOT IN (SELECT id FROM error_log ORDER BY id DESC LIMIT ?)`,
		l.limit,
	); err != nil {
		return fmt.Errorf("prune error log: %w", err)
	}
	return tx.Commit()
}

func (l *SQLiteLog) Recent(ctx context.Context, n int) ([]domain.ErrorEntry, error) {
	if n <= 0 || n > l.limit {
		n = l.limit
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT at_unix, message FROM (
			SELECT id, at_unix, message FROM error_log ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, n)
	if err != nil {
		return nil, fmt.Errorf("query error log: %w", err)
	}
	defer rows.Close()

	var out []domain.ErrorEntry
	for rows.Next() {
		var (
			at  int64
			msg string
		)
		if err := rows.Scan(&at, &msg); err != nil {
			return nil, fmt.Errorf("scan error entry: %w", err)
		}
		out = append(out, domain.ErrorEntry{At: time.Unix(0, at).UTC(), Message: msg})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error log: %w", err)
	}
	return out, nil
}

func (l *SQLiteLog) Clear(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM error_log`); err != nil {
		return fmt.Errorf("clear error log: %w", err)
	}
	return nil
}
