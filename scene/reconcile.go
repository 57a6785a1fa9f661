package scene

// AppState is the part of the local view state that matters for merging: the
// elements the local user is in the middle of manipulating.
type AppState struct {
	EditingElement  string `json:"editingElement,omitempty"`
	ResizingElement string `json:"resizingElement,omitempty"`
	DraggingElement string `json:"draggingElement,omitempty"`
}

func (a AppState) busyWith(id string) bool {
	return id != "" && (a.EditingElement == id || a.ResizingElement == id || a.DraggingElement == id)
}

// Reconciler merges a local scene with a previously stored remote scene. It
// must be deterministic and return a scene with unique element ids.
type Reconciler func(local, remote Scene, state AppState) Scene

// Reconcile is the default Reconciler. For each element present on both
// sides the local copy wins if the user is manipulating it, if it has a higher
// version, or on a version tie if it has the lower version nonce. Output keeps
// the local order, followed by remote-only elements in remote order.
func Reconcile(local, remote Scene, state AppState) Scene {
	remoteByID := make(map[string]Element, len(remote))
	for _, el := range remote {
		remoteByID[el.ID] = el
	}

	out := make(Scene, 0, len(local)+len(remote))
	taken := make(map[string]struct{}, len(local)+len(remote))
	for _, el := range local {
		if _, dup := taken[el.ID]; dup {
			continue
		}
		taken[el.ID] = struct{}{}
		r, ok := remoteByID[el.ID]
		if !ok || keepLocal(el, r, state) {
			out = append(out, el)
			continue
		}
		out = append(out, r)
	}
	for _, el := range remote {
		if _, dup := taken[el.ID]; dup {
			continue
		}
		taken[el.ID] = struct{}{}
		out = append(out, el)
	}
	return out
}

func keepLocal(local, remote Element, state AppState) bool {
	switch {
	case state.busyWith(local.ID):
		return true
	case local.Version != remote.Version:
		return local.Version > remote.Version
	default:
		return local.VersionNonce <= remote.VersionNonce
	}
}
