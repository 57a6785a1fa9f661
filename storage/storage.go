// Package storage persists room scenes and their binary files.
//
// Backend is the contract the collaboration layer depends on. Every
// implementation shares the same save protocol (see Syncer) and differs only
// in the transport used to move encrypted bytes: a RoomStore for scenes and a
// FileStore for binary files.
package storage

import (
	"context"
	"errors"
	"fmt"

	"collabtext/portal"
	"collabtext/scene"
)

// Backend is the remote storage capability set used by collaborators.
type Backend interface {
	// IsSaved reports whether elements match what was last saved over the
	// portal's socket. Without an open room there is nothing to protect, so
	// it reports true.
	IsSaved(p *portal.Portal, elements scene.Scene) bool

	// SaveScene persists elements to the portal's room, merging with any
	// scene already stored there.
	SaveScene(ctx context.Context, p *portal.Portal, elements scene.Scene, state scene.AppState) (SaveResult, error)

	// LoadScene returns the room's stored scene, or nil if the room has
	// never been saved.
	LoadScene(ctx context.Context, roomID, roomKey string, socket *portal.Socket) (scene.Scene, error)

	// SaveFiles stores binary files under prefix, encrypted with roomKey.
	SaveFiles(ctx context.Context, prefix, roomKey string, files []scene.BinaryFile) FilesResult

	// LoadFiles loads and decrypts binary files stored under prefix.
	LoadFiles(ctx context.Context, prefix, roomKey string, ids []string) LoadFilesResult
}

// RoomStore moves encrypted scene payloads. GetRoom returns an empty payload
// and no error for a room that was never written. PutRoom replaces the payload
// atomically.
type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) ([]byte, error)
	PutRoom(ctx context.Context, roomID string, payload []byte) error
}

// FileStore moves encrypted binary file payloads.
type FileStore interface {
	GetFile(ctx context.Context, key string) ([]byte, error)
	PutFile(ctx context.Context, key string, payload []byte) error
}

// ErrFileNotFound is returned by a FileStore for an unknown key.
var ErrFileNotFound = errors.New("file not found")

// Outcome is the result of a save attempt.
type Outcome int

const (
	// OutcomeNoOp means nothing needed saving; no write occurred.
	OutcomeNoOp Outcome = iota
	// OutcomeFailed means the attempt failed without side effects.
	OutcomeFailed
	// OutcomeSaved means the scene was written.
	OutcomeSaved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoOp:
		return "no-op"
	case OutcomeFailed:
		return "failed"
	case OutcomeSaved:
		return "saved"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// SaveResult reports a save attempt. On OutcomeSaved, Merged is the scene the
// caller should apply locally; it is nil when the room was empty and the
// caller's scene was written as is.
type SaveResult struct {
	Outcome Outcome
	Merged  scene.Scene
}

// TransportError indicates that moving bytes to or from the store failed.
// The attempt left no state behind and may be retried.
type TransportError struct {
	Op   string
	Room string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s room %q: %v", e.Op, e.Room, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ReconcileError indicates that the reconciler produced an invalid scene.
type ReconcileError struct {
	Err error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconciled scene is invalid: %v", e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a failed attempt may succeed if repeated with
// the same inputs.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
