package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ongoingai/langfuse-bridge/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore persists journal entries in a shared Postgres database.
type PostgresStore struct {
	DSN string
	db  *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn cannot be empty")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	store := &PostgresStore{DSN: dsn, db: db}
	store.configure()
	if err := migrations.Apply(context.Background(), db, migrations.DriverPostgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure postgres schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) configure() {
	s.db.SetMaxOpenConns(10)
	s.db.SetMaxIdleConns(5)
	s.db.SetConnMaxLifetime(30 * time.Minute)
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) WriteEntry(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO submissions (
    trace_id, generation_id, call_type, model, level, status, error, payload, recorded_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.TraceID,
		entry.GenerationID,
		entry.CallType,
		entry.Model,
		entry.Level,
		entry.Status,
		entry.Error,
		entry.Payload,
		normalizeRecordedAt(entry.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin postgres batch transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO submissions (
    trace_id, generation_id, call_type, model, level, status, error, payload, recorded_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return fmt.Errorf("prepare postgres batch insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			entry.TraceID,
			entry.GenerationID,
			entry.CallType,
			entry.Model,
			entry.Level,
			entry.Status,
			entry.Error,
			entry.Payload,
			normalizeRecordedAt(entry.RecordedAt),
		); err != nil {
			return fmt.Errorf("insert journal entry in batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit postgres batch transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentFailures(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, trace_id, generation_id, call_type, model, level, status, error, payload, recorded_at
FROM submissions
WHERE status = $1
ORDER BY recorded_at DESC, id DESC
LIMIT $2`, StatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal failures: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, trace_id, generation_id, call_type, model, level, status, error, payload, recorded_at
FROM submissions
WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("journal entry %d: %w", id, ErrNotFound)
	}
	return entry, err
}
