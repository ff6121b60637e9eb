package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// PostgresStore stores execution records in PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib" or "github.com/lib/pq").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given database
// and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS execution_records (
			id BIGSERIAL PRIMARY KEY,
			execution_id TEXT NOT NULL,
			at BIGINT NOT NULL,
			kind TEXT NOT NULL,
			request TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_execution_records_execution_id ON execution_records(execution_id, id);
	`)
	return err
}

func (s *PostgresStore) AppendRecord(ctx context.Context, rec api.Record) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_records (execution_id, at, kind, request, detail)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ExecutionID,
		at.UnixNano(),
		string(rec.Kind),
		string(rec.Request),
		rec.Detail,
	)
	return err
}

func (s *PostgresStore) ListRecords(ctx context.Context, executionID string) ([]api.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, at, kind, request, detail
		FROM execution_records
		WHERE execution_id = $1
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
