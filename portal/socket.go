// Package portal connects a collaborator to a room on the relay server.
//
// A Socket is the live websocket connection. Its identity is what the
// storage layer uses to remember which scene was last saved over it; the
// storage layer never performs I/O on it.
package portal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
)

var (
	// ErrClosed is returned when sending on a closed socket.
	ErrClosed = errors.New("socket closed")
	// ErrBufferFull is returned when the peer is not draining messages.
	ErrBufferFull = errors.New("socket send buffer full")
)

// Socket is a websocket connection with a buffered outgoing queue.
type Socket struct {
	ID string

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewSocket wraps an established websocket connection.
func NewSocket(conn *websocket.Conn) *Socket {
	return &Socket{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Dial connects to a relay endpoint such as ws://host/ws/{roomId}.
func Dial(ctx context.Context, url string, header http.Header) (*Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return NewSocket(conn), nil
}

// Send queues msg for delivery without blocking.
func (s *Socket) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.send <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run pumps messages until the connection fails or ctx is done. Every
// received message is passed to handle. The socket is closed on return.
func (s *Socket) Run(ctx context.Context, handle func([]byte)) error {
	defer s.Close()

	go s.writePump()
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		handle(message)
	}
}

// Close stops the write pump and closes the connection. It is safe to call
// more than once.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.send)
	return s.conn.Close()
}

func (s *Socket) writePump() {
	for message := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
			s.Close()
			return
		}
	}
	_ = s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
}
