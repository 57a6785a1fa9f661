package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"collabtext/envelope"
	"collabtext/portal"
	"collabtext/scene"
	"collabtext/versioncache"
)

// Syncer implements Backend on top of a RoomStore and an optional
// FileStore.
//
// A save attempt performs at most one fetch and one write. Concurrent
// attempts are not serialized: both may fetch, merge and write, and the store
// keeps the last write. Every writer reconciles again on its next attempt.
type Syncer struct {
	rooms     RoomStore
	files     FileStore
	cache     *versioncache.Cache[portal.Socket]
	reconcile scene.Reconciler
	logger    hclog.Logger
	now       func() time.Time
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithFiles enables binary file storage.
func WithFiles(files FileStore) Option {
	return func(s *Syncer) { s.files = files }
}

// WithReconciler replaces scene.Reconcile.
func WithReconciler(r scene.Reconciler) Option {
	return func(s *Syncer) { s.reconcile = r }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

// WithClock sets the time source used to filter stale deleted elements.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// NewSyncer returns a Backend that stores scenes in rooms.
func NewSyncer(rooms RoomStore, opts ...Option) *Syncer {
	s := &Syncer{
		rooms:     rooms,
		cache:     versioncache.New[portal.Socket](),
		reconcile: scene.Reconcile,
		logger:    hclog.NewNullLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Backend = (*Syncer)(nil)

// IsSaved implements Backend.
func (s *Syncer) IsSaved(p *portal.Portal, elements scene.Scene) bool {
	if !p.Open() {
		return true
	}
	return !s.cache.IsDirty(p.Socket, elements)
}

// SaveScene implements Backend.
//
// The room's previous scene is merged with elements and the merge result is
// returned for the caller to apply, but the bytes written are elements
// themselves, not the merge result.
func (s *Syncer) SaveScene(ctx context.Context, p *portal.Portal, elements scene.Scene, state scene.AppState) (SaveResult, error) {
	if !p.Open() || s.IsSaved(p, elements) {
		return SaveResult{Outcome: OutcomeNoOp}, nil
	}
	logger := s.logger.With("room", p.RoomID)

	key, err := envelope.ParseKey(p.RoomKey)
	if err != nil {
		return failed(err)
	}
	plaintext, err := scene.Marshal(elements)
	if err != nil {
		return failed(err)
	}

	payload, err := s.rooms.GetRoom(ctx, p.RoomID)
	if err != nil {
		logger.Warn("failed to fetch room", "error", err)
		return failed(&TransportError{Op: "get", Room: p.RoomID, Err: err})
	}

	if len(payload) == 0 {
		logger.Debug("room is empty, writing local scene")
		if err := s.write(ctx, p.RoomID, key, plaintext); err != nil {
			logger.Warn("failed to write room", "error", err)
			return failed(err)
		}
		s.cache.Set(p.Socket, elements)
		return SaveResult{Outcome: OutcomeSaved}, nil
	}

	previous, err := decodeScene(key, payload)
	if err != nil {
		logger.Warn("failed to decode room", "error", err)
		return failed(err)
	}
	now := s.now()
	merged := s.reconcile(elements, previous.Syncable(now), state).Syncable(now)
	if err := merged.Validate(); err != nil {
		return failed(&ReconcileError{Err: err})
	}

	if err := s.write(ctx, p.RoomID, key, plaintext); err != nil {
		logger.Warn("failed to write room", "error", err)
		return failed(err)
	}
	s.cache.Set(p.Socket, elements)
	logger.Debug("saved room", "local", len(elements), "previous", len(previous), "merged", len(merged))
	return SaveResult{Outcome: OutcomeSaved, Merged: merged}, nil
}

// LoadScene implements Backend. A loaded scene is recorded as saved for
// socket, if one is given.
func (s *Syncer) LoadScene(ctx context.Context, roomID, roomKey string, socket *portal.Socket) (scene.Scene, error) {
	key, err := envelope.ParseKey(roomKey)
	if err != nil {
		return nil, err
	}
	payload, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, &TransportError{Op: "get", Room: roomID, Err: err}
	}
	if len(payload) == 0 {
		return nil, nil
	}

	loaded, err := decodeScene(key, payload)
	if err != nil {
		return nil, err
	}
	loaded = loaded.Syncable(s.now())
	if socket != nil {
		s.cache.Set(socket, loaded)
	}
	return loaded, nil
}

func (s *Syncer) write(ctx context.Context, roomID string, key, plaintext []byte) error {
	wire, err := envelope.Seal(key, plaintext)
	if err != nil {
		return err
	}
	if err := s.rooms.PutRoom(ctx, roomID, wire); err != nil {
		return &TransportError{Op: "put", Room: roomID, Err: err}
	}
	return nil
}

func decodeScene(key, payload []byte) (scene.Scene, error) {
	plaintext, err := envelope.Open(key, payload)
	if err != nil {
		return nil, err
	}
	s, err := scene.Unmarshal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("room payload: %w", err)
	}
	return s, nil
}

func failed(err error) (SaveResult, error) {
	return SaveResult{Outcome: OutcomeFailed}, err
}
