// Package scene holds the collaboratively edited document: an ordered list of
// elements keyed by id, plus the cheap version fingerprint used to tell whether
// a scene changed since it was last persisted.
package scene

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeletedElementTimeout is how long a deleted element is still synced so that
// peers get a chance to observe the deletion.
const DeletedElementTimeout = 24 * time.Hour

// Element is a single graphical element of a scene. Data carries the
// element's drawing properties and is opaque to this package.
type Element struct {
	ID           string          `json:"id"`
	Type         string          `json:"type,omitempty"`
	Version      int64           `json:"version"`
	VersionNonce int64           `json:"versionNonce"`
	IsDeleted    bool            `json:"isDeleted,omitempty"`
	Updated      int64           `json:"updated,omitempty"` // unix millis
	Data         json.RawMessage `json:"data,omitempty"`
}

// Scene is an ordered set of elements. Element ids are unique within a scene.
type Scene []Element

// Fingerprint summarises the versions of a scene's elements.
type Fingerprint int64

// Version returns the scene's fingerprint: the sum of its element versions.
// Every element edit bumps its version, so an edited scene never keeps its
// previous fingerprint.
func (s Scene) Version() Fingerprint {
	var v int64
	for _, el := range s {
		v += el.Version
	}
	return Fingerprint(v)
}

// Validate reports duplicate or empty element ids.
func (s Scene) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for i, el := range s {
		if el.ID == "" {
			return fmt.Errorf("element %d has no id", i)
		}
		if _, ok := seen[el.ID]; ok {
			return fmt.Errorf("duplicate element id %q", el.ID)
		}
		seen[el.ID] = struct{}{}
	}
	return nil
}

// Clone returns a copy of s that shares no element slice with it.
func (s Scene) Clone() Scene {
	if s == nil {
		return nil
	}
	out := make(Scene, len(s))
	copy(out, s)
	return out
}

// Syncable returns the elements that should be sent to peers and storage.
// Deleted elements are dropped once they are older than DeletedElementTimeout.
func (s Scene) Syncable(now time.Time) Scene {
	cutoff := now.Add(-DeletedElementTimeout).UnixMilli()
	out := make(Scene, 0, len(s))
	for _, el := range s {
		if el.IsDeleted && el.Updated <= cutoff {
			continue
		}
		out = append(out, el)
	}
	return out
}

// Marshal encodes the scene as a JSON array of elements.
func Marshal(s Scene) ([]byte, error) {
	if s == nil {
		s = Scene{}
	}
	return json.Marshal(s)
}

// Unmarshal decodes a JSON array of elements and checks element id uniqueness.
func Unmarshal(data []byte) (Scene, error) {
	var s Scene
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding scene: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("decoding scene: %w", err)
	}
	return s, nil
}

// BinaryFile is an asset referenced by scene elements, such as an image.
type BinaryFile struct {
	ID   string `json:"id"`
	Data []byte `json:"data"`
}
