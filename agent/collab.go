package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/hashicorp/go-hclog"

	"collabtext/portal"
	"collabtext/scene"
	"collabtext/storage"
)

const (
	saveRetries     = 5
	shutdownTimeout = 10 * time.Second
)

// collaborator holds the agent's copy of the room's scene. Local UI edits and
// relayed peer edits are merged into it, and it is saved to remote storage
// whenever it differs from what was last saved.
type collaborator struct {
	mu       sync.Mutex
	elements scene.Scene
	state    scene.AppState

	portal  *portal.Portal
	backend storage.Backend
	logger  hclog.Logger

	// publish delivers an op to local UI clients.
	publish    func(Op)
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

func newCollaborator(p *portal.Portal, backend storage.Backend, logger hclog.Logger) *collaborator {
	return &collaborator{
		portal:  p,
		backend: backend,
		logger:  logger,
		publish: func(Op) {},
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), saveRetries)
		},
		now: time.Now,
	}
}

func (c *collaborator) filePrefix() string {
	return fmt.Sprintf("files/rooms/%s", c.portal.RoomID)
}

func (c *collaborator) snapshot() (scene.Scene, scene.AppState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elements.Clone(), c.state
}

// merge reconciles incoming elements into the local scene and pushes the
// result to the UI.
func (c *collaborator) merge(incoming scene.Scene) {
	c.mu.Lock()
	c.elements = scene.Reconcile(c.elements, incoming, c.state)
	current := c.elements.Clone()
	c.mu.Unlock()
	c.publish(Op{Action: actionScene, Elements: current})
}

// handleOp applies an op received from a local UI.
func (c *collaborator) handleOp(op Op) {
	switch op.Action {
	case actionUpdate:
		c.applyLocal(op)
	case actionSaveFiles:
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.saveFiles(ctx, op.Files)
	case actionLoadFiles:
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.loadFiles(ctx, op.FileIDs)
	case actionSync:
		current, _ := c.snapshot()
		c.publish(Op{Action: actionScene, Elements: current})
	default:
		c.logger.Warn("unknown op", "action", op.Action)
	}
}

// applyLocal replaces or appends the elements the UI changed and broadcasts
// them to the room.
func (c *collaborator) applyLocal(op Op) {
	c.mu.Lock()
	c.elements = upsert(c.elements, op.Elements)
	if op.AppState != nil {
		c.state = *op.AppState
	}
	current := c.elements.Clone()
	c.mu.Unlock()

	if err := c.portal.Broadcast(portal.MessageSceneUpdate, op.Elements.Syncable(c.now())); err != nil {
		c.logger.Warn("error broadcasting update", "error", err)
	}
	c.publish(Op{Action: actionScene, Elements: current})
}

// applyRemote merges a message relayed from another collaborator.
func (c *collaborator) applyRemote(raw []byte) {
	msg, err := c.portal.Decode(raw)
	if err != nil {
		c.logger.Warn("dropping relayed message", "error", err)
		return
	}
	c.merge(msg.Elements)
}

func upsert(elements, updates scene.Scene) scene.Scene {
	index := make(map[string]int, len(elements))
	for i, el := range elements {
		index[el.ID] = i
	}
	for _, el := range updates {
		if i, ok := index[el.ID]; ok {
			elements[i] = el
			continue
		}
		index[el.ID] = len(elements)
		elements = append(elements, el)
	}
	return elements
}

// load seeds the local scene from the room.
func (c *collaborator) load(ctx context.Context) error {
	loaded, err := c.backend.LoadScene(ctx, c.portal.RoomID, c.portal.RoomKey, c.portal.Socket)
	if err != nil {
		return err
	}
	if loaded == nil {
		c.logger.Info("room has no saved scene yet")
		return nil
	}
	c.merge(loaded)
	c.logger.Info("loaded scene", "elements", len(loaded))
	return nil
}

// save runs one save attempt, retrying transport failures with backoff. A
// merged scene returned by the backend is applied locally.
func (c *collaborator) save(ctx context.Context) (storage.SaveResult, error) {
	elements, state := c.snapshot()

	var res storage.SaveResult
	var permanent error
	err := backoff.Retry(func() error {
		var err error
		res, err = c.backend.SaveScene(ctx, c.portal, elements, state)
		if err != nil && !storage.IsRetryable(err) {
			permanent = err
			return nil
		}
		return err
	}, backoff.WithContext(c.newBackOff(), ctx))
	if permanent != nil {
		err = permanent
	}
	if err != nil {
		return res, err
	}

	if res.Outcome == storage.OutcomeSaved && res.Merged != nil {
		c.merge(res.Merged)
	}
	return res, nil
}

// saveLoop saves on every tick while the scene is dirty, and once more when
// ctx is done.
func (c *collaborator) saveLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.saveIfDirty(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			c.saveIfDirty(final)
			cancel()
			return
		}
	}
}

func (c *collaborator) saveIfDirty(ctx context.Context) {
	elements, _ := c.snapshot()
	if c.backend.IsSaved(c.portal, elements) {
		return
	}
	res, err := c.save(ctx)
	if err != nil {
		c.logger.Warn("save failed", "retryable", storage.IsRetryable(err), "error", err)
		return
	}
	c.logger.Debug("save finished", "outcome", res.Outcome, "merged", res.Merged != nil)
}

func (c *collaborator) saveFiles(ctx context.Context, files []scene.BinaryFile) {
	res := c.backend.SaveFiles(ctx, c.filePrefix(), c.portal.RoomKey, files)
	if res.Unsupported {
		c.logger.Info("remote storage does not support files", "files", len(files))
		return
	}
	if err := res.Err(); err != nil {
		c.logger.Warn("some files were not saved", "saved", len(res.Saved), "error", err)
	}
}

func (c *collaborator) loadFiles(ctx context.Context, ids []string) {
	res := c.backend.LoadFiles(ctx, c.filePrefix(), c.portal.RoomKey, ids)
	if res.Unsupported {
		c.logger.Info("remote storage does not support files", "files", len(ids))
		return
	}
	if err := res.Err(); err != nil {
		c.logger.Warn("some files were not loaded", "loaded", len(res.Loaded), "error", err)
	}
	if len(res.Loaded) > 0 {
		c.publish(Op{Action: actionFiles, Files: res.Loaded})
	}
}
