// Package pgstore keeps room and file payloads in PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collabtext/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	payload    BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS files (
	key        TEXT PRIMARY KEY,
	payload    BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Store is a storage.RoomStore and storage.FileStore on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.RoomStore = (*Store)(nil)
	_ storage.FileStore = (*Store)(nil)
)

// New wraps an existing pool. Call Migrate before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Dial connects to databaseURL and creates the tables if needed.
func Dial(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the rooms and files tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// GetRoom implements storage.RoomStore.
func (s *Store) GetRoom(ctx context.Context, roomID string) ([]byte, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM rooms WHERE id = $1`, roomID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return payload, err
}

// PutRoom implements storage.RoomStore.
func (s *Store) PutRoom(ctx context.Context, roomID string, payload []byte) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO rooms (id, payload, updated_at) VALUES ($1, $2, now())
ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`, roomID, payload)
	return err
}

// GetFile implements storage.FileStore.
func (s *Store) GetFile(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM files WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrFileNotFound
	}
	return payload, err
}

// PutFile implements storage.FileStore.
func (s *Store) PutFile(ctx context.Context, key string, payload []byte) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO files (key, payload) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload`, key, payload)
	return err
}
