// Package history persists one row per data-access request in a local
// SQLite file so operators can review what the dashboard served and from
// which source. Writes are best-effort; the read path never depends on
// this store being healthy.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"voc-dashboard/internal/domain"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLite DSN parameters for production hardening.
const (
	busyTimeout = "5000" // milliseconds
	synchronous = "NORMAL"
	journalMode = "WAL"
)

// Store records and lists data-access history entries.
type Store struct {
	db *sql.DB
}

var _ domain.HistoryRecorder = (*Store)(nil)

// Open opens (or creates) the history database at path and runs pending
// migrations. SQLite handles concurrent writers poorly, so the pool is
// capped at a single open connection.
func Open(path string) (*Store, error) {
	params := url.Values{}
	params.Set("_journal_mode", journalMode)
	params.Set("_busy_timeout", busyTimeout)
	params.Set("_synchronous", synchronous)
	params.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite3", path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one history entry.
func (s *Store) Record(ctx context.Context, entry domain.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_history
			(requested_at, logical_table, fingerprint, source, duration_ms, row_count, error_text)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestedAt.UTC(),
		string(entry.Table),
		entry.Fingerprint,
		string(entry.Source),
		entry.DurationMS,
		entry.RowCount,
		entry.ErrorText,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first. limit <= 0 defaults
// to 50 and is capped at 500.
func (s *Store) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, requested_at, logical_table, fingerprint, source, duration_ms, row_count, error_text
		FROM query_history
		ORDER BY requested_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var table, source string
		if err := rows.Scan(&e.ID, &e.RequestedAt, &table, &e.Fingerprint, &source, &e.DurationMS, &e.RowCount, &e.ErrorText); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Table = domain.LogicalTable(table)
		e.Source = domain.Source(source)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// CountBySource aggregates entries per provenance, a quick degraded-mode
// health check for operators.
func (s *Store) CountBySource(ctx context.Context) (map[domain.Source]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, COUNT(*) FROM query_history GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("count history by source: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[domain.Source]int64)
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scan history count: %w", err)
		}
		counts[domain.Source(source)] = n
	}
	return counts, rows.Err()
}
