package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

// SQLiteStore is a Store backed by a single SQLite table.
type SQLiteStore struct {
	// The string "purego" or "cgo" depending on build tags.
	BuildType string

	// Separate pools so readers do not queue behind the single writer connection.
	ro, rw *sql.DB
}

// NewOnDiskSQLiteStore opens (creating if needed) the database at dbPath.
func NewOnDiskSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dbPath = filepath.Clean(dbPath)
	if _, err := os.Stat(dbPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat path %q: %w", dbPath, err)
		}
		// The startup pragmas fail unless the file exists.
		// O_EXCL instead of os.Create so an existing file is never truncated.
		f, err := os.OpenFile(dbPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to create empty database file: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("failed to close new empty database file: %w", err)
		}
	}

	uri := "file:" + dbPath + "?mode=rw"
	rw, err := sql.Open(sqliteDriverType, uri)
	if err != nil {
		return nil, fmt.Errorf("error opening read-write database: %w", err)
	}
	// One writer at a time; other writers block on the pool instead of failing with "database is locked".
	rw.SetMaxOpenConns(1)

	if _, err := rw.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
		return nil, fmt.Errorf("failed to set journal_mode=WAL: %w", err)
	}
	if err := pragmasRW(ctx, rw); err != nil {
		return nil, err
	}
	if err := migrate(ctx, rw); err != nil {
		return nil, err
	}

	// mode=rw was the final query parameter.
	uri = uri[:len(uri)-1] + "o"
	ro, err := sql.Open(sqliteDriverType, uri)
	if err != nil {
		return nil, fmt.Errorf("error opening read-only database: %w", err)
	}

	return &SQLiteStore{BuildType: sqliteBuildType, rw: rw, ro: ro}, nil
}

var inMemNameCounter uint32

// NewInMemSQLiteStore returns a store on a private in-memory database.
func NewInMemSQLiteStore(ctx context.Context) (*SQLiteStore, error) {
	dbName := fmt.Sprintf("kv%d", atomic.AddUint32(&inMemNameCounter, 1))
	// A shared cache is required so every pooled connection sees the same database.
	uri := "file:" + dbName + "?mode=memory&cache=shared&_txlock=immediate"

	rw, err := sql.Open(sqliteDriverType, uri)
	if err != nil {
		return nil, fmt.Errorf("error opening in-memory database: %w", err)
	}
	rw.SetMaxOpenConns(1)

	if err := pragmasRW(ctx, rw); err != nil {
		return nil, err
	}
	if err := migrate(ctx, rw); err != nil {
		return nil, err
	}

	// Readers on a shared-cache memory database hit SQLITE_LOCKED while the
	// writer is active, so the in-memory store uses one pool for both.
	return &SQLiteStore{BuildType: sqliteBuildType, rw: rw, ro: rw}, nil
}

func (s *SQLiteStore) Close() error {
	if s.ro == s.rw {
		return s.rw.Close()
	}
	errRO := s.ro.Close()
	if errRO != nil {
		errRO = fmt.Errorf("error closing read-only database: %w", errRO)
	}
	errRW := s.rw.Close()
	if errRW != nil {
		errRW = fmt.Errorf("error closing read-write database: %w", errRW)
	}
	return errors.Join(errRO, errRW)
}

func (s *SQLiteStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	var v []byte
	err := s.ro.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select key: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.rw.ExecContext(
		ctx,
		`INSERT INTO kv(k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert key: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key []byte) error {
	if _, err := s.rw.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Write(ctx context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	tx, err := s.rw.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, op := range b.ops {
		if op.remove {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, op.key); err != nil {
				return fmt.Errorf("failed to delete key: %w", err)
			}
			continue
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO kv(k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
			op.key, op.value,
		); err != nil {
			return fmt.Errorf("failed to upsert key: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func pragmasRW(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx,
		`CREATE TABLE IF NOT EXISTS migrations(
  id INTEGER PRIMARY KEY CHECK (id = 0),
  version INTEGER
);`,
	); err != nil {
		return fmt.Errorf("error creating migrations table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO migrations(id, version) VALUES (0, 0)`); err != nil {
		return fmt.Errorf("error setting initial migration version: %w", err)
	}

	var version int
	if err := tx.QueryRowContext(ctx, `SELECT version FROM migrations WHERE id=0;`).Scan(&version); err != nil {
		return fmt.Errorf("failed to scan migration version: %w", err)
	}

	switch version {
	case 0:
		if _, err := tx.ExecContext(ctx, `CREATE TABLE kv(
  k BLOB PRIMARY KEY NOT NULL,
  v BLOB NOT NULL
) WITHOUT ROWID;`); err != nil {
			return fmt.Errorf("initial migration: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE migrations SET version = 1 WHERE id = 0`); err != nil {
			return fmt.Errorf("failed to set migration version: %w", err)
		}
	case 1:
		// Up to date.
	default:
		return fmt.Errorf("unknown migration version %d", version)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}
