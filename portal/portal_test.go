package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/envelope"
	"collabtext/scene"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestPortalBroadcastRoundTrip(t *testing.T) {
	ts := echoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sock, err := Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)

	roomKey, err := envelope.GenerateKey()
	require.NoError(t, err)
	p := &Portal{RoomID: "room", RoomKey: roomKey, Socket: sock}
	require.True(t, p.Open())

	received := make(chan []byte, 1)
	done := make(chan error, 1)
	go func() {
		done <- sock.Run(ctx, func(msg []byte) { received <- msg })
	}()

	elements := scene.Scene{{ID: "a", Version: 1}, {ID: "b", Version: 2}}
	require.NoError(t, p.Broadcast(MessageSceneUpdate, elements))

	select {
	case raw := <-received:
		msg, err := p.Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, MessageSceneUpdate, msg.Type)
		assert.Equal(t, sock.ID, msg.SocketID)
		assert.Equal(t, elements, msg.Elements)
	case <-ctx.Done():
		t.Fatal("timed out waiting for echo")
	}

	cancel()
	<-done
	assert.ErrorIs(t, sock.Send([]byte("late")), ErrClosed)
}

func TestPortalOpen(t *testing.T) {
	var nilPortal *Portal
	assert.False(t, nilPortal.Open())
	assert.False(t, (&Portal{RoomID: "r", RoomKey: "k"}).Open())
	assert.False(t, (&Portal{RoomKey: "k", Socket: &Socket{}}).Open())
	assert.Error(t, (&Portal{}).Broadcast(MessageSceneInit, nil))
}

func TestDecodeWrongKey(t *testing.T) {
	k1, _ := envelope.GenerateKey()
	k2, _ := envelope.GenerateKey()
	key, err := envelope.ParseKey(k1)
	require.NoError(t, err)
	wire, err := envelope.Seal(key, []byte(`{"type":"SCENE_UPDATE","elements":[]}`))
	require.NoError(t, err)

	p := &Portal{RoomID: "r", RoomKey: k2}
	_, err = p.Decode(wire)
	var decErr *envelope.DecryptionError
	assert.ErrorAs(t, err, &decErr)
}
