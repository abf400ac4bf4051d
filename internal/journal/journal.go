// Package journal persists submission outcomes locally so operators can
// audit what the bridge sent and replay failures after a backend outage.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ongoingai/langfuse-bridge/internal/config"
)

// Submission entry statuses.
const (
	StatusSubmitted = "submitted"
	StatusFailed    = "failed"
	// StatusSkipped records calls the pipeline saw but did not submit, for
	// example legacy-path calls without a recognized response.
	StatusSkipped = "skipped"
)

var ErrNotFound = errors.New("journal entry not found")

// Entry is one journaled submission outcome. Payload holds the original
// capture JSON so failed submissions can be replayed.
type Entry struct {
	ID           int64
	TraceID      string
	GenerationID string
	CallType     string
	Model        string
	Level        string
	Status       string
	Error        string
	Payload      []byte
	RecordedAt   time.Time
}

// Store persists journal entries.
type Store interface {
	WriteEntry(ctx context.Context, entry *Entry) error
	WriteBatch(ctx context.Context, entries []*Entry) error
	// RecentFailures returns the newest failed entries, newest first.
	RecentFailures(ctx context.Context, limit int) ([]*Entry, error)
	// GetEntry returns one entry by id, or ErrNotFound.
	GetEntry(ctx context.Context, id int64) (*Entry, error)
	Close() error
}

// Open constructs the store selected by configuration.
func Open(cfg config.JournalConfig) (Store, error) {
	switch strings.TrimSpace(cfg.Driver) {
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "postgres":
		return NewPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", cfg.Driver)
	}
}
