package storage

import (
	"context"
	"fmt"
	"path"

	"github.com/hashicorp/go-multierror"

	"collabtext/envelope"
	"collabtext/scene"
)

// FilesResult reports a batch save. Partial failure is expected; each file
// is listed in exactly one of Saved or Errored. Unsupported is set, with both
// lists empty, when the backend cannot store files at all.
type FilesResult struct {
	Saved       []string
	Errored     map[string]error
	Unsupported bool
}

// Err combines the per-file errors, or returns nil if every file was saved.
func (r FilesResult) Err() error {
	return combine(r.Errored)
}

// LoadFilesResult reports a batch load with the same per-file semantics as
// FilesResult.
type LoadFilesResult struct {
	Loaded      []scene.BinaryFile
	Errored     map[string]error
	Unsupported bool
}

// Err combines the per-file errors, or returns nil if every file was loaded.
func (r LoadFilesResult) Err() error {
	return combine(r.Errored)
}

func combine(errs map[string]error) error {
	var result *multierror.Error
	for id, err := range errs {
		result = multierror.Append(result, fmt.Errorf("file %q: %w", id, err))
	}
	return result.ErrorOrNil()
}

// FileKey returns the storage key for a file under prefix.
func FileKey(prefix, id string) string {
	return path.Join(prefix, id)
}

// SaveFiles implements Backend.
func (s *Syncer) SaveFiles(ctx context.Context, prefix, roomKey string, files []scene.BinaryFile) FilesResult {
	if s.files == nil {
		return FilesResult{Errored: map[string]error{}, Unsupported: true}
	}

	result := FilesResult{Errored: make(map[string]error)}
	key, err := envelope.ParseKey(roomKey)
	if err != nil {
		for _, f := range files {
			result.Errored[f.ID] = err
		}
		return result
	}

	for _, f := range files {
		if f.ID == "" {
			result.Errored[f.ID] = fmt.Errorf("file has no id")
			continue
		}
		wire, err := envelope.Seal(key, f.Data)
		if err != nil {
			result.Errored[f.ID] = err
			continue
		}
		if err := s.files.PutFile(ctx, FileKey(prefix, f.ID), wire); err != nil {
			s.logger.Warn("failed to save file", "prefix", prefix, "file", f.ID, "error", err)
			result.Errored[f.ID] = err
			continue
		}
		result.Saved = append(result.Saved, f.ID)
	}
	return result
}

// LoadFiles implements Backend.
func (s *Syncer) LoadFiles(ctx context.Context, prefix, roomKey string, ids []string) LoadFilesResult {
	if s.files == nil {
		return LoadFilesResult{Errored: map[string]error{}, Unsupported: true}
	}

	result := LoadFilesResult{Errored: make(map[string]error)}
	key, err := envelope.ParseKey(roomKey)
	if err != nil {
		for _, id := range ids {
			result.Errored[id] = err
		}
		return result
	}

	for _, id := range ids {
		wire, err := s.files.GetFile(ctx, FileKey(prefix, id))
		if err != nil {
			result.Errored[id] = err
			continue
		}
		data, err := envelope.Open(key, wire)
		if err != nil {
			result.Errored[id] = err
			continue
		}
		result.Loaded = append(result.Loaded, scene.BinaryFile{ID: id, Data: data})
	}
	return result
}
