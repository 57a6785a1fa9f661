// Package memstore keeps room and file payloads in process memory.
package memstore

import (
	"context"
	"sync"

	"collabtext/storage"
)

// Store is an in-memory RoomStore and FileStore.
type Store struct {
	mu    sync.RWMutex
	rooms map[string][]byte
	files map[string][]byte
}

var (
	_ storage.RoomStore = (*Store)(nil)
	_ storage.FileStore = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		rooms: make(map[string][]byte),
		files: make(map[string][]byte),
	}
}

// GetRoom implements storage.RoomStore.
func (s *Store) GetRoom(ctx context.Context, roomID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.rooms[roomID]), nil
}

// PutRoom implements storage.RoomStore.
func (s *Store) PutRoom(ctx context.Context, roomID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = clone(payload)
	return nil
}

// GetFile implements storage.FileStore.
func (s *Store) GetFile(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[key]
	if !ok {
		return nil, storage.ErrFileNotFound
	}
	return clone(data), nil
}

// PutFile implements storage.FileStore.
func (s *Store) PutFile(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = clone(payload)
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
