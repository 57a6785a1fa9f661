// Package boltstore keeps room and file payloads in a local bbolt database.
package boltstore

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"collabtext/storage"
)

var (
	roomsBucket = []byte("rooms")
	filesBucket = []byte("files")
)

// Store is a storage.RoomStore and storage.FileStore on a bbolt file.
type Store struct {
	db *bolt.DB
}

var (
	_ storage.RoomStore = (*Store)(nil)
	_ storage.FileStore = (*Store)(nil)
)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{roomsBucket, filesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetRoom implements storage.RoomStore.
func (s *Store) GetRoom(ctx context.Context, roomID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.get(roomsBucket, roomID)
}

// PutRoom implements storage.RoomStore.
func (s *Store) PutRoom(ctx context.Context, roomID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.put(roomsBucket, roomID, payload)
}

// GetFile implements storage.FileStore.
func (s *Store) GetFile(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.get(filesBucket, key)
	if err == nil && data == nil {
		return nil, storage.ErrFileNotFound
	}
	return data, err
}

// PutFile implements storage.FileStore.
func (s *Store) PutFile(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.put(filesBucket, key, payload)
}

func (s *Store) get(bucket []byte, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v != nil {
			// v is only valid for the life of the transaction.
			out = append([]byte{}, v...)
		}
		return nil
	})
	return out, err
}

func (s *Store) put(bucket []byte, key string, payload []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), payload)
	})
}
