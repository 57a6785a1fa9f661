package main

import (
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/portal"
	"collabtext/storage/memstore"
)

func TestFrames(t *testing.T) {
	id := uuid.NewString()
	frame, err := encodeFrame(id, []byte("payload"))
	require.NoError(t, err)

	sender, msg, err := decodeFrame(string(frame))
	require.NoError(t, err)
	assert.Equal(t, id, sender)
	assert.Equal(t, []byte("payload"), msg)

	_, err = encodeFrame("short", nil)
	assert.Error(t, err)
	_, _, err = decodeFrame("short")
	assert.Error(t, err)
}

func TestRelay(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	store := memstore.New()
	ts := httptest.NewServer(newRouter(
		&roomHandler{rooms: store, files: store, logger: hclog.NewNullLogger()},
		&relay{rdb: rdb, logger: hclog.NewNullLogger()},
	))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + uuid.NewString()

	a, err := portal.Dial(ctx, url, nil)
	require.NoError(t, err)
	b, err := portal.Dial(ctx, url, nil)
	require.NoError(t, err)

	received := make(chan []byte, 1)
	go func() { _ = a.Run(ctx, func([]byte) {}) }()
	go func() {
		_ = b.Run(ctx, func(msg []byte) {
			select {
			case received <- msg:
			default:
			}
		})
	}()

	// Subscriptions are set up asynchronously; resend until b hears a.
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		require.NoError(t, a.Send([]byte("hello")))
		select {
		case msg := <-received:
			assert.Equal(t, []byte("hello"), msg)
			return
		case <-tick.C:
		case <-ctx.Done():
			t.Fatal("timed out waiting for relayed message")
		}
	}
}
