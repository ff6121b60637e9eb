package history

import (
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/maraxen/praxisbridge/internal/testutil"
)

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	db, err := sql.Open("pgx", testutil.GetPostgresDSN(t))
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewPostgresStore(db)
	if err != nil {
		t.Fatalf("NewPostgresStore failed: %v", err)
	}

	// The database is shared across tests; start from an empty table.
	if _, err := db.Exec(`TRUNCATE TABLE execution_records RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}

	return store
}

func TestPostgresStore_Contract(t *testing.T) {
	checkStoreContract(t, newTestPostgresStore(t))
}

func TestPostgresStore_StampsZeroTime(t *testing.T) {
	checkStoreStampsTime(t, newTestPostgresStore(t))
}

func TestPostgresStore_SchemaIsIdempotent(t *testing.T) {
	db, err := sql.Open("pgx", testutil.GetPostgresDSN(t))
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := NewPostgresStore(db); err != nil {
		t.Fatalf("first NewPostgresStore failed: %v", err)
	}
	if _, err := NewPostgresStore(db); err != nil {
		t.Fatalf("second NewPostgresStore failed: %v", err)
	}
}
