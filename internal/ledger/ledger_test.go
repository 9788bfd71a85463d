package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/linerelay/internal/log"
	"github.com/mattjoyce/linerelay/internal/storage"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestSeenUnknownKey(t *testing.T) {
	t.Parallel()
	l := openLedger(t)

	seen, err := l.Seen(context.Background(), "01FZ74A0TDDPYRVKNK77XKC3ZR")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRecordThenSeen(t *testing.T) {
	t.Parallel()
	l := openLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, "evt-1", "U123"))
	seen, err := l.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = l.Seen(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRecordTwiceKeepsOneRow(t *testing.T) {
	t.Parallel()
	l := openLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, "evt-1", "U123"))
	require.NoError(t, l.Record(ctx, "evt-1", "U123"))

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordStoresDigestNotUserID(t *testing.T) {
	t.Parallel()
	l := openLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, "evt-1", "U4af4980629"))

	var hash string
	require.NoError(t, l.db.QueryRow("SELECT user_hash FROM webhook_events WHERE event_key = ?;", "evt-1").Scan(&hash))
	assert.Equal(t, log.Digest("U4af4980629"), hash)
	assert.NotContains(t, hash, "U4af4980629")
}

func TestEmptyKeyRejected(t *testing.T) {
	t.Parallel()
	l := openLedger(t)

	_, err := l.Seen(context.Background(), "")
	assert.Error(t, err)
	assert.Error(t, l.Record(context.Background(), "", "U1"))
}

func TestPruneRemovesOldEvents(t *testing.T) {
	t.Parallel()
	l := openLedger(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	require.NoError(t, l.Record(ctx, "old", "U1"))

	l.now = func() time.Time { return base.Add(48 * time.Hour) }
	require.NoError(t, l.Record(ctx, "new", "U1"))

	n, err := l.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	seen, err := l.Seen(ctx, "old")
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = l.Seen(ctx, "new")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestPruneRejectsNonPositiveRetention(t *testing.T) {
	t.Parallel()
	l := openLedger(t)

	_, err := l.Prune(context.Background(), 0)
	assert.Error(t, err)
}
