package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/envelope"
	"collabtext/portal"
	"collabtext/scene"
	"collabtext/storage"
	"collabtext/storage/memstore"
)

type recorder struct {
	mu  sync.Mutex
	ops []Op
}

func (r *recorder) publish(op Op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recorder) last() Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ops) == 0 {
		return Op{}
	}
	return r.ops[len(r.ops)-1]
}

func newTestCollaborator(t *testing.T, roomKey, socketID string, backend storage.Backend) (*collaborator, *recorder) {
	t.Helper()
	p := &portal.Portal{RoomID: "room-1", RoomKey: roomKey, Socket: &portal.Socket{ID: socketID}}
	c := newCollaborator(p, backend, hclog.NewNullLogger())
	rec := &recorder{}
	c.publish = rec.publish
	c.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	}
	return c, rec
}

func el(id string, version int64) scene.Element {
	return scene.Element{ID: id, Version: version, Updated: time.Now().UnixMilli()}
}

func ids(s scene.Scene) []string {
	out := make([]string, 0, len(s))
	for _, e := range s {
		out = append(out, e.ID)
	}
	return out
}

func TestUpsert(t *testing.T) {
	s := scene.Scene{el("a", 1), el("b", 1)}
	s = upsert(s, scene.Scene{el("b", 2), el("c", 1)})
	assert.Equal(t, []string{"a", "b", "c"}, ids(s))
	assert.Equal(t, int64(2), s[1].Version)
}

func TestHandleUpdatePublishesScene(t *testing.T) {
	key, err := envelope.GenerateKey()
	require.NoError(t, err)
	c, rec := newTestCollaborator(t, key, "socket-a", storage.NewSyncer(memstore.New()))

	state := scene.AppState{EditingElement: "a"}
	c.handleOp(Op{Action: actionUpdate, Elements: scene.Scene{el("a", 1)}, AppState: &state})

	last := rec.last()
	assert.Equal(t, actionScene, last.Action)
	assert.Equal(t, []string{"a"}, ids(last.Elements))
	_, got := c.snapshot()
	assert.Equal(t, state, got)

	c.handleOp(Op{Action: actionSync})
	assert.Equal(t, []string{"a"}, ids(rec.last().Elements))
}

func TestApplyRemote(t *testing.T) {
	key, err := envelope.GenerateKey()
	require.NoError(t, err)
	c, rec := newTestCollaborator(t, key, "socket-a", storage.NewSyncer(memstore.New()))
	c.handleOp(Op{Action: actionUpdate, Elements: scene.Scene{el("a", 1)}})

	raw, err := json.Marshal(portal.Message{
		Type:     portal.MessageSceneUpdate,
		SocketID: "socket-b",
		Elements: scene.Scene{el("a", 3), el("b", 1)},
	})
	require.NoError(t, err)
	k, err := envelope.ParseKey(key)
	require.NoError(t, err)
	wire, err := envelope.Seal(k, raw)
	require.NoError(t, err)

	c.applyRemote(wire)
	current, _ := c.snapshot()
	assert.Equal(t, []string{"a", "b"}, ids(current))
	assert.Equal(t, int64(3), current[0].Version)
	assert.Equal(t, ids(current), ids(rec.last().Elements))

	// Garbage is dropped without touching the scene.
	c.applyRemote([]byte("not an envelope"))
	after, _ := c.snapshot()
	assert.Equal(t, current, after)
}

func TestCollaboratorsShareRoom(t *testing.T) {
	ctx := context.Background()
	key, err := envelope.GenerateKey()
	require.NoError(t, err)
	store := memstore.New()

	alice, _ := newTestCollaborator(t, key, "socket-a", storage.NewSyncer(store, storage.WithFiles(store)))
	bob, _ := newTestCollaborator(t, key, "socket-b", storage.NewSyncer(store, storage.WithFiles(store)))

	alice.handleOp(Op{Action: actionUpdate, Elements: scene.Scene{el("a", 1)}})
	res, err := alice.save(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeSaved, res.Outcome)

	// Nothing changed, so the next tick does not write.
	elements, _ := alice.snapshot()
	assert.True(t, alice.backend.IsSaved(alice.portal, elements))

	require.NoError(t, bob.load(ctx))
	current, _ := bob.snapshot()
	assert.Equal(t, []string{"a"}, ids(current))

	bob.handleOp(Op{Action: actionUpdate, Elements: scene.Scene{el("b", 1)}})
	res, err = bob.save(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeSaved, res.Outcome)
	current, _ = bob.snapshot()
	assert.ElementsMatch(t, []string{"a", "b"}, ids(current))
}

func TestFilesRoundTrip(t *testing.T) {
	ctx := context.Background()
	key, err := envelope.GenerateKey()
	require.NoError(t, err)
	store := memstore.New()
	c, rec := newTestCollaborator(t, key, "socket-a", storage.NewSyncer(store, storage.WithFiles(store)))

	c.saveFiles(ctx, []scene.BinaryFile{{ID: "img-1", Data: []byte("png")}})
	c.loadFiles(ctx, []string{"img-1"})

	last := rec.last()
	require.Equal(t, actionFiles, last.Action)
	require.Len(t, last.Files, 1)
	assert.Equal(t, "img-1", last.Files[0].ID)
	assert.Equal(t, []byte("png"), last.Files[0].Data)
}

func TestFilesUnsupported(t *testing.T) {
	key, err := envelope.GenerateKey()
	require.NoError(t, err)
	c, rec := newTestCollaborator(t, key, "socket-a", storage.NewSyncer(memstore.New()))

	c.loadFiles(context.Background(), []string{"img-1"})
	assert.Empty(t, rec.ops)
}

// flakyBackend fails SaveScene a fixed number of times.
type flakyBackend struct {
	storage.Backend

	failures int
	err      error
	calls    int
}

func (f *flakyBackend) SaveScene(ctx context.Context, p *portal.Portal, elements scene.Scene, state scene.AppState) (storage.SaveResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return storage.SaveResult{Outcome: storage.OutcomeFailed}, f.err
	}
	return f.Backend.SaveScene(ctx, p, elements, state)
}

func TestSaveRetriesTransportErrors(t *testing.T) {
	key, err := envelope.GenerateKey()
	require.NoError(t, err)
	backend := &flakyBackend{
		Backend:  storage.NewSyncer(memstore.New()),
		failures: 2,
		err:      &storage.TransportError{Op: "put", Room: "room-1", Err: errors.New("connection reset")},
	}
	c, _ := newTestCollaborator(t, key, "socket-a", backend)
	c.handleOp(Op{Action: actionUpdate, Elements: scene.Scene{el("a", 1)}})

	res, err := c.save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeSaved, res.Outcome)
	assert.Equal(t, 3, backend.calls)
}

func TestSaveGivesUpOnPermanentErrors(t *testing.T) {
	key, err := envelope.GenerateKey()
	require.NoError(t, err)
	backend := &flakyBackend{
		Backend:  storage.NewSyncer(memstore.New()),
		failures: 10,
		err:      &storage.ReconcileError{Err: errors.New("duplicate element id")},
	}
	c, _ := newTestCollaborator(t, key, "socket-a", backend)
	c.handleOp(Op{Action: actionUpdate, Elements: scene.Scene{el("a", 1)}})

	_, err = c.save(context.Background())
	var re *storage.ReconcileError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 1, backend.calls)
}

func TestSaveLoopFinalSave(t *testing.T) {
	key, err := envelope.GenerateKey()
	require.NoError(t, err)
	store := memstore.New()
	c, _ := newTestCollaborator(t, key, "socket-a", storage.NewSyncer(store))
	c.handleOp(Op{Action: actionUpdate, Elements: scene.Scene{el("a", 1)}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.saveLoop(ctx, time.Hour)

	payload, err := store.GetRoom(context.Background(), "room-1")
	require.NoError(t, err)
	assert.NotEmpty(t, payload)
}
