package main

import "collabtext/scene"

// Actions carried by Op.
const (
	actionUpdate    = "update"     // UI -> agent: elements changed locally
	actionSaveFiles = "save_files" // UI -> agent: store binary files
	actionLoadFiles = "load_files" // UI -> agent: fetch binary files
	actionSync      = "sync"       // UI -> agent: send me the current scene
	actionScene     = "scene"      // agent -> UI: the whole current scene
	actionFiles     = "files"      // agent -> UI: loaded binary files
)

// Op is the message exchanged with local UI clients over the agent's
// websocket.
type Op struct {
	Action   string             `json:"action"`
	Elements scene.Scene        `json:"elements,omitempty"`
	AppState *scene.AppState    `json:"appState,omitempty"`
	Files    []scene.BinaryFile `json:"files,omitempty"`
	FileIDs  []string           `json:"fileIds,omitempty"`
	ClientID string             `json:"clientID,omitempty"` // ID of the browser tab to prevent echo
}
