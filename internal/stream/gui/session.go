package gui

import (
	"context"
	"errors"
	"io"

	"pgresults/pkg/results"
)

// ErrSessionNotFound is what a SessionProvider returns for ids it no longer
// knows; the display answers it with NoticeRerun.
var ErrSessionNotFound = errors.New("session not found")

// NoticeRerun is shown when a display asks for results that are gone.
const NoticeRerun = "The query must be re-run to see its results"

// SessionInfo is the JSON shape for one session in the GUI API.
type SessionInfo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	SQL       string `json:"sql"`
	State     string `json:"state"`
	Command   string `json:"command"`
	Rows      int    `json:"rows"`
	Batches   int    `json:"batches"`
	Error     string `json:"error,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"` // RFC3339
}

// SessionProvider runs queries and keeps their results for the GUI.
// Implemented by the stream engine.
type SessionProvider interface {
	GetSessions() []SessionInfo
	Execute(ctx context.Context, sql, title string, sink results.DisplaySink) (id string, err error)
	// Restore resends everything accumulated for id to sink.
	Restore(id string, sink results.DisplaySink) error
	DestroySession(id string) error
	SetActive(id string) error
	Snapshot(id string) (results.FullResults, error)
	// Export writes id (the active session when id is empty) as "csv" or "json".
	Export(id, format string, w io.Writer) error
}
