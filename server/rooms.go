package main

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"collabtext/storage"
)

// maxPayloadBytes bounds room and file uploads.
const maxPayloadBytes = 10 << 20

// roomHandler serves encrypted room and file payloads. It never sees keys or
// plaintext.
type roomHandler struct {
	rooms  storage.RoomStore
	files  storage.FileStore
	logger hclog.Logger
}

func newRouter(h *roomHandler, rl *relay) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/rooms/{roomId}", h.getRoom).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{roomId}", h.putRoom).Methods(http.MethodPut)
	r.HandleFunc("/files/{key:.+}", h.getFile).Methods(http.MethodGet)
	r.HandleFunc("/files/{key:.+}", h.putFile).Methods(http.MethodPut)
	if rl != nil {
		r.HandleFunc("/ws/{roomId}", rl.serveRoom)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

// getRoom answers 200 with an empty body for a room that was never written.
func (h *roomHandler) getRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	payload, err := h.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		h.logger.Error("error reading room", "room", roomID, "error", err)
		http.Error(w, "error reading room", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *roomHandler) putRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	payload, ok := readPayload(w, r)
	if !ok {
		return
	}
	if err := h.rooms.PutRoom(r.Context(), roomID, payload); err != nil {
		h.logger.Error("error writing room", "room", roomID, "error", err)
		http.Error(w, "error writing room", http.StatusInternalServerError)
		return
	}
	h.logger.Debug("room written", "room", roomID, "bytes", len(payload))
	w.WriteHeader(http.StatusOK)
}

func (h *roomHandler) getFile(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	payload, err := h.files.GetFile(r.Context(), key)
	switch {
	case errors.Is(err, storage.ErrFileNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		h.logger.Error("error reading file", "key", key, "error", err)
		http.Error(w, "error reading file", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(payload)
}

func (h *roomHandler) putFile(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	payload, ok := readPayload(w, r)
	if !ok {
		return
	}
	if err := h.files.PutFile(r.Context(), key, payload); err != nil {
		h.logger.Error("error writing file", "key", key, "error", err)
		http.Error(w, "error writing file", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func readPayload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		http.Error(w, "error reading body", http.StatusBadRequest)
		return nil, false
	}
	if len(payload) == 0 {
		http.Error(w, "empty payload", http.StatusBadRequest)
		return nil, false
	}
	return payload, true
}
