package main

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIStats summarizes a store.
type CLIStats struct {
	Dir      string         `json:"dir"`
	Version  int            `json:"version"`
	Counts   map[string]int `json:"counts"`
	Surnames int            `json:"surnames"`
	Home     string         `json:"home_person,omitempty"`
	ReadOnly bool           `json:"read_only"`
}

// CLIHandle is one row of a handle listing.
type CLIHandle struct {
	Kind     string `json:"kind"`
	Handle   string `json:"handle"`
	GrampsID string `json:"gramps_id,omitempty"`
}

// CLIObject carries a stored object as relaxed extended JSON.
type CLIObject struct {
	Kind   string `json:"kind"`
	Handle string `json:"handle"`
	Object any    `json:"object"`
}

// CLILock describes the lock file of a store.
type CLILock struct {
	Dir    string `json:"dir"`
	Locked bool   `json:"locked"`
	Owner  string `json:"owner,omitempty"`
	Broken bool   `json:"broken,omitempty"`
}

// CLIImport reports a finished import.
type CLIImport struct {
	File    string         `json:"file"`
	Added   int            `json:"added"`
	Updated int            `json:"updated"`
	ByKind  map[string]int `json:"by_kind"`
}

// CLIMessage is a plain status line.
type CLIMessage struct {
	Message string `json:"message"`
}
