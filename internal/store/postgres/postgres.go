package postgres

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"jewelpos/backend/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const maxSerializationRetries = 3

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return get(ctx, s.db, key, false)
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return set(ctx, s.db, key, value)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key)
	return err
}

func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]store.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value::text
		FROM kv_store
		WHERE left(key, length($1)) = $1
		ORDER BY key
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]store.Entry, 0, 64)
	for rows.Next() {
		var (
			key   string
			value string
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		entries = append(entries, store.Entry{Key: key, Value: []byte(value)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Update takes a transaction-scoped advisory lock per key (in sorted order so
// concurrent callers cannot deadlock), then reads rows FOR UPDATE. Keys that
// do not exist yet are covered by the advisory lock. Serialization failures
// are retried a bounded number of times.
func (s *Store) Update(ctx context.Context, keys []string, fn func(tx store.Tx) error) error {
	locked := slices.Clone(keys)
	slices.Sort(locked)
	locked = slices.Compact(locked)

	var err error
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		err = s.update(ctx, locked, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (s *Store) update(ctx context.Context, keys []string, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	for _, key := range keys {
		if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return err
		}
	}

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Get(ctx context.Context, key string) ([]byte, error) {
	return get(ctx, t.tx, key, true)
}

func (t *pgTx) Set(ctx context.Context, key string, value []byte) error {
	return set(ctx, t.tx, key, value)
}

func (t *pgTx) Delete(ctx context.Context, key string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key)
	return err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func get(ctx context.Context, q queryer, key string, forUpdate bool) ([]byte, error) {
	query := `SELECT value::text FROM kv_store WHERE key = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var value string
	if err := q.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return []byte(value), nil
}

func set(ctx context.Context, q queryer, key string, value []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, string(value))
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
