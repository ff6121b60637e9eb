package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// SQLiteStore stores execution records in SQLite.
//
// The caller provides the *sql.DB and is responsible for importing a driver
// for its side effects, e.g.:
//
//	_ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the schema and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS execution_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			kind TEXT NOT NULL,
			request TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_execution_records_execution_id ON execution_records(execution_id, id);
	`)
	return err
}

func (s *SQLiteStore) AppendRecord(ctx context.Context, rec api.Record) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_records (execution_id, at, kind, request, detail)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ExecutionID,
		at.UnixNano(),
		string(rec.Kind),
		string(rec.Request),
		rec.Detail,
	)
	return err
}

func (s *SQLiteStore) ListRecords(ctx context.Context, executionID string) ([]api.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, at, kind, request, detail
		FROM execution_records
		WHERE execution_id = ?
		ORDER BY id ASC`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.Record
	for rows.Next() {
		var (
			id      string
			atN     int64
			kind    string
			request string
			detail  string
		)
		if err := rows.Scan(&id, &atN, &kind, &request, &detail); err != nil {
			return nil, err
		}
		out = append(out, api.Record{
			ExecutionID: id,
			At:          time.Unix(0, atN),
			Kind:        api.RecordKind(kind),
			Request:     api.MessageKind(request),
			Detail:      detail,
		})
	}
	return out, rows.Err()
}
