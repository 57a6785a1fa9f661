package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"collabtext/portal"
)

const socketIDLength = 36

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// relay forwards encrypted messages between the sockets joined to a room.
// Rooms are Redis channels, so sockets on different server instances see
// each other.
type relay struct {
	rdb    *redis.Client
	logger hclog.Logger
}

func roomChannel(roomID string) string {
	return "collabtext:relay:" + roomID
}

// encodeFrame prefixes msg with the sender's socket id so that the sender
// can skip its own messages.
func encodeFrame(socketID string, msg []byte) ([]byte, error) {
	if len(socketID) != socketIDLength {
		return nil, fmt.Errorf("socket id %q has length %d, want %d", socketID, len(socketID), socketIDLength)
	}
	frame := make([]byte, 0, socketIDLength+len(msg))
	frame = append(frame, socketID...)
	return append(frame, msg...), nil
}

func decodeFrame(frame string) (socketID string, msg []byte, err error) {
	if len(frame) < socketIDLength {
		return "", nil, fmt.Errorf("short relay frame (%d bytes)", len(frame))
	}
	return frame[:socketIDLength], []byte(frame[socketIDLength:]), nil
}

func (rl *relay) serveRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		rl.logger.Warn("websocket upgrade failed", "room", roomID, "error", err)
		return
	}
	socket := portal.NewSocket(ws)
	logger := rl.logger.With("room", roomID, "socket", socket.ID)
	logger.Info("new connection")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := rl.rdb.Subscribe(ctx, roomChannel(roomID))
	defer pubsub.Close()

	go func() {
		for msg := range pubsub.Channel() {
			sender, payload, err := decodeFrame(msg.Payload)
			if err != nil {
				logger.Warn("dropping relay frame", "error", err)
				continue
			}
			if sender == socket.ID {
				continue
			}
			if err := socket.Send(payload); err != nil {
				logger.Warn("error relaying to client", "error", err)
				cancel()
				return
			}
		}
	}()

	err = socket.Run(ctx, func(msg []byte) {
		frame, err := encodeFrame(socket.ID, msg)
		if err != nil {
			logger.Error("error framing message", "error", err)
			return
		}
		if err := rl.rdb.Publish(ctx, roomChannel(roomID), frame).Err(); err != nil {
			logger.Warn("error publishing to Redis", "error", err)
		}
	})
	logger.Info("client disconnected", "reason", err)
}
