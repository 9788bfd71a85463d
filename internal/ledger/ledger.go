// Package ledger records which webhook events have been answered so that a
// redelivered event is not answered twice.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/linerelay/internal/log"
)

// DefaultRetention is how long handled events are remembered.
const DefaultRetention = 72 * time.Hour

// handled_at is compared as text, so timestamps use a fixed-width UTC layout.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Ledger is backed by the webhook_events table.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a Ledger backed by db.
func New(db *sql.DB) *Ledger {
	return &Ledger{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Seen reports whether key has already been recorded.
func (l *Ledger) Seen(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("event key is empty")
	}

	var one int
	err := l.db.QueryRowContext(ctx, "SELECT 1 FROM webhook_events WHERE event_key = ?;", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup webhook event: %w", err)
	}
	return true, nil
}

// Record marks key as handled. Recording the same key twice refreshes its
// timestamp. Only a digest of the sender id is stored.
func (l *Ledger) Record(ctx context.Context, key, userID string) error {
	if key == "" {
		return fmt.Errorf("event key is empty")
	}

	_, err := l.db.ExecContext(ctx, `
INSERT INTO webhook_events(id, event_key, user_hash, handled_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(event_key) DO UPDATE SET handled_at = excluded.handled_at;
`, uuid.NewString(), key, log.Digest(userID), l.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}

// Prune deletes events handled before now minus retention and returns how
// many rows were removed.
func (l *Ledger) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	cutoff := l.now().Add(-retention).UTC().Format(timeLayout)

	res, err := l.db.ExecContext(ctx, "DELETE FROM webhook_events WHERE handled_at < ?;", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune webhook events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}

// Count returns the number of remembered events.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM webhook_events;").Scan(&n); err != nil {
		return 0, fmt.Errorf("count webhook events: %w", err)
	}
	return n, nil
}
