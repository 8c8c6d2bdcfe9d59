package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registered as "sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_state (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
);
`

// SQLite is an embedded single-file [TokenStore] backed by modernc.org/sqlite.
// The three session fields live as rows in one table and are replaced inside
// a single transaction, so readers never see a partial session.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and prepares the
// schema. The caller owns the returned store and must Close it.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite store path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &SQLite{db: db}, nil
}

// Save describes the save operation and its observable behavior.
func (s *SQLite) Save(ctx context.Context, state State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_state`); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rows := map[string]string{
		FieldUser:         string(state.User),
		FieldAccessToken:  state.AccessToken,
		FieldRefreshToken: state.RefreshToken,
	}
	for k, v := range rows {
		if _, err := tx.ExecContext(ctx, `INSERT INTO session_state (k, v) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Load describes the load operation and its observable behavior.
func (s *SQLite) Load(ctx context.Context) (*State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT k, v FROM session_state`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	fields := make(map[string]string, 3)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		fields[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	state := State{
		User:         []byte(fields[FieldUser]),
		AccessToken:  fields[FieldAccessToken],
		RefreshToken: fields[FieldRefreshToken],
	}
	if !state.Complete() {
		return nil, nil
	}
	return cloneState(state), nil
}

// Clear describes the clear operation and its observable behavior.
func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_state`); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
