package miniofiles

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/storage"
)

func TestTranslateError(t *testing.T) {
	notFound := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	assert.ErrorIs(t, translateError(notFound), storage.ErrFileNotFound)

	other := errors.New("connection reset")
	assert.Equal(t, other, translateError(other))
}

func TestStore(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_MINIO_ENDPOINT not set")
	}
	ctx := context.Background()
	s, err := New(ctx, Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_MINIO_SECRET_KEY"),
		Bucket:    "collabtext-test",
	})
	require.NoError(t, err)

	key := storage.FileKey(uuid.NewString(), "image")
	_, err = s.GetFile(ctx, key)
	assert.ErrorIs(t, err, storage.ErrFileNotFound)

	require.NoError(t, s.PutFile(ctx, key, []byte("blob")))
	data, err := s.GetFile(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), data)
}
