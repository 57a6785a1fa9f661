// Package redisstore keeps room and file payloads in Redis.
package redisstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"collabtext/storage"
)

const (
	roomPrefix = "collabtext:room:"
	filePrefix = "collabtext:file:"
)

// Store is a storage.RoomStore and storage.FileStore on a Redis client.
type Store struct {
	rdb redis.UniversalClient
}

var (
	_ storage.RoomStore = (*Store)(nil)
	_ storage.FileStore = (*Store)(nil)
)

// New wraps an existing client.
func New(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Dial connects to the Redis server at addr and checks that it answers.
func Dial(ctx context.Context, addr string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return New(rdb), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// GetRoom implements storage.RoomStore.
func (s *Store) GetRoom(ctx context.Context, roomID string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, roomPrefix+roomID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

// PutRoom implements storage.RoomStore.
func (s *Store) PutRoom(ctx context.Context, roomID string, payload []byte) error {
	return s.rdb.Set(ctx, roomPrefix+roomID, payload, 0).Err()
}

// GetFile implements storage.FileStore.
func (s *Store) GetFile(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, filePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrFileNotFound
	}
	return data, err
}

// PutFile implements storage.FileStore.
func (s *Store) PutFile(ctx context.Context, key string, payload []byte) error {
	return s.rdb.Set(ctx, filePrefix+key, payload, 0).Err()
}
