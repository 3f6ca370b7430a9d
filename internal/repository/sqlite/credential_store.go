// Package sqlite contains the SQLite-backed credential store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/and161185/drivepass/internal/errs"
	"github.com/and161185/drivepass/internal/migrate"
	"github.com/and161185/drivepass/internal/repository"

	_ "modernc.org/sqlite"
)

// Store implements repository.CredentialStore on a single SQLite file.
type Store struct{ db *sql.DB }

var _ repository.CredentialStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// one writer; keeps ClearAll and Set from interleaving on separate connections
	db.SetMaxOpenConns(1)

	if err := migrate.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the stored value or (nil, nil) when key is absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential[%s]: %w: %v", key, errs.ErrStorage, err)
	}
	return value, nil
}

const upsertCredential = `
	INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := db.ExecContext(ctx, upsertCredential, key, value)
	return err
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := upsert(ctx, s.db, key, value); err != nil {
		return fmt.Errorf("set credential[%s]: %w: %v", key, errs.ErrStorage, err)
	}
	return nil
}

// SetSession upserts token and user inside one transaction.
func (s *Store) SetSession(ctx context.Context, token, user []byte) error {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := upsert(ctx, tx, repository.KeyToken, token); err != nil {
			return err
		}
		return upsert(ctx, tx, repository.KeyUser, user)
	})
	if err != nil {
		return fmt.Errorf("set session: %w: %v", errs.ErrStorage, err)
	}
	return nil
}

// Remove deletes key. Absent keys are ignored.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove credential[%s]: %w: %v", key, errs.ErrStorage, err)
	}
	return nil
}

// ClearAll deletes all session entries inside one transaction.
func (s *Store) ClearAll(ctx context.Context) error {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, key := range repository.SessionKeys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear credentials: %w: %v", errs.ErrStorage, err)
	}
	return nil
}

// withTx commits on success and rolls back on error or panic.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
