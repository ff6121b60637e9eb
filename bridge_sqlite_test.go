package praxisbridge

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"
)

// TestBridge_HistoryDurableAcrossRestart demonstrates that execution history
// written through a SQLite store remains readable after the bridge and the
// database handle are torn down and reopened.
func TestBridge_HistoryDurableAcrossRestart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPath := filepath.Join(t.TempDir(), "praxisbridge_history.db")
	dsn := "file:" + dbPath + "?_journal=WAL"

	// --- Phase 1: run one submission with history enabled.

	db1, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)

	store1, err := NewSQLiteHistory(db1)
	require.NoError(t, err)

	bridge1, err := New(ctx, WithHistory(store1))
	require.NoError(t, err)

	h, err := bridge1.Controller.Submit(ctx, `print("recorded")`)
	require.NoError(t, err)
	_, err = h.Drain(ctx)
	require.NoError(t, err)
	executionID := h.ID()

	// Close before listing so the recording observer has flushed the
	// completion record.
	bridge1.Close()

	records, err := store1.ListRecords(ctx, executionID)
	require.NoError(t, err)
	require.Len(t, records, 2, "expected a submission record and a completion record")

	// Simulate process shutdown.
	require.NoError(t, db1.Close())

	// --- Phase 2: "restart" with a new DB handle and bridge.

	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db2.Close()

	store2, err := NewSQLiteHistory(db2)
	require.NoError(t, err)

	bridge2, err := New(ctx, WithHistory(store2))
	require.NoError(t, err)
	defer bridge2.Close()

	after, err := bridge2.History.ListRecords(ctx, executionID)
	require.NoError(t, err)
	require.Len(t, after, 2, "history must survive the restart")
	require.Equal(t, RecordSubmitted, after[0].Kind)
	require.Equal(t, RecordCompleted, after[1].Kind)
}
