package redisstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/storage"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	s, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRooms(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	room := uuid.NewString()

	data, err := s.GetRoom(ctx, room)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, s.PutRoom(ctx, room, []byte("payload")))
	data, err = s.GetRoom(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestFiles(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	key := storage.FileKey(uuid.NewString(), "image")

	_, err := s.GetFile(ctx, key)
	assert.ErrorIs(t, err, storage.ErrFileNotFound)

	require.NoError(t, s.PutFile(ctx, key, []byte("blob")))
	data, err := s.GetFile(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), data)
}
