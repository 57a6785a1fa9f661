package portal

import (
	"encoding/json"
	"fmt"

	"collabtext/envelope"
	"collabtext/scene"
)

// Message types exchanged between collaborators in a room.
const (
	MessageSceneInit   = "SCENE_INIT"
	MessageSceneUpdate = "SCENE_UPDATE"
)

// Message is the plaintext carried inside every relayed envelope.
type Message struct {
	Type     string      `json:"type"`
	SocketID string      `json:"socketId,omitempty"`
	Elements scene.Scene `json:"elements"`
}

// Portal is a collaborator's membership in a room: the room credentials and
// the socket joined to it. Credentials live only as long as the portal.
type Portal struct {
	RoomID  string
	RoomKey string
	Socket  *Socket
}

// Open reports whether the portal has a room, a key and a socket.
func (p *Portal) Open() bool {
	return p != nil && p.RoomID != "" && p.RoomKey != "" && p.Socket != nil
}

// Broadcast encrypts elements with the room key and queues them for the
// other collaborators.
func (p *Portal) Broadcast(msgType string, elements scene.Scene) error {
	if !p.Open() {
		return fmt.Errorf("portal is not open")
	}
	key, err := envelope.ParseKey(p.RoomKey)
	if err != nil {
		return err
	}
	if elements == nil {
		elements = scene.Scene{}
	}
	plaintext, err := json.Marshal(Message{Type: msgType, SocketID: p.Socket.ID, Elements: elements})
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", msgType, err)
	}
	wire, err := envelope.Seal(key, plaintext)
	if err != nil {
		return err
	}
	return p.Socket.Send(wire)
}

// Decode opens a relayed envelope received on the portal's socket.
func (p *Portal) Decode(data []byte) (*Message, error) {
	key, err := envelope.ParseKey(p.RoomKey)
	if err != nil {
		return nil, err
	}
	plaintext, err := envelope.Open(key, data)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(plaintext, &msg); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	if err := msg.Elements.Validate(); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	return &msg, nil
}
