package pgprops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dCoord/lib/props"
	"github.com/lib/pq"
)

const (
	DefaultTableName = "dcoord_props"
	operationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Store is a property store backed by PostgreSQL.
type Store struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewStore returns a store for the given DSN. The connection is opened lazily.
// An empty table name selects DefaultTableName.
func NewStore(dsn, tableName string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, props.NewError(props.RetCInvalidOperation, "empty postgres dsn")
	}
	if tableName == "" {
		tableName = DefaultTableName
	}
	return &Store{
		dsn:       dsn,
		tableName: tableName,
		openDB:    sql.Open,
	}, nil
}

func (s *Store) Get(key string) (string, bool, error) {
	if err := s.ensureReady(); err != nil {
		return "", false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT prop_value FROM %s WHERE prop_key = $1", pq.QuoteIdentifier(s.tableName))
	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap(err)
	}
	return value, true, nil
}

func (s *Store) Set(key, value string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (prop_key, prop_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (prop_key)
		DO UPDATE SET prop_value = EXCLUDED.prop_value, updated_at = NOW()`, pq.QuoteIdentifier(s.tableName))
	_, err := s.db.ExecContext(ctx, query, key, value)
	return wrap(err)
}

func (s *Store) SetIfUnset(key, value string) (bool, error) {
	if err := s.ensureReady(); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (prop_key, prop_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (prop_key) DO NOTHING`, pq.QuoteIdentifier(s.tableName))
	res, err := s.db.ExecContext(ctx, query, key, value)
	if err != nil {
		return false, wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap(err)
	}
	return n == 1, nil
}

func (s *Store) Delete(key string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE prop_key = $1", pq.QuoteIdentifier(s.tableName))
	_, err := s.db.ExecContext(ctx, query, key)
	return wrap(err)
}

func (s *Store) ListKeys() ([]string, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT prop_key FROM %s ORDER BY prop_key", pq.QuoteIdentifier(s.tableName))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, wrap(err)
		}
		keys = append(keys, k)
	}
	return keys, wrap(rows.Err())
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = wrap(err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				prop_key TEXT PRIMARY KEY,
				prop_value TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, pq.QuoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = wrap(err)
			return
		}
		s.db = db
	})
	return s.initErr
}

// wrap turns driver errors into store errors. Everything the database reports is
// treated as unavailability of the backend.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	return props.NewError(props.RetCUnavailable, err.Error())
}

var _ props.IConditionalStore = (*Store)(nil)
