package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"pgresults/internal/stream/gui"
	"pgresults/pkg/results"
)

// sessionProviderAdapter adapts *Engine to gui.SessionProvider so the GUI package does not import stream.
type sessionProviderAdapter struct {
	e *Engine
}

// guiErr translates ErrSessionNotFound for the GUI.
func guiErr(err error) error {
	if errors.Is(err, ErrSessionNotFound) {
		return gui.ErrSessionNotFound
	}
	return err
}

func (a *sessionProviderAdapter) GetSessions() []gui.SessionInfo {
	sessions := a.e.Sessions()
	list := make([]gui.SessionInfo, len(sessions))
	for i, s := range sessions {
		list[i] = gui.SessionInfo{
			ID:        s.ID,
			Title:     s.Title,
			SQL:       s.SQL,
			State:     s.State.String(),
			Command:   string(s.Command),
			Rows:      s.Rows,
			Batches:   s.Batches,
			Error:     s.Error,
			Active:    s.Active,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
		}
	}
	return list
}

func (a *sessionProviderAdapter) Execute(ctx context.Context, sql, title string, sink results.DisplaySink) (string, error) {
	s, err := a.e.Execute(ctx, sql, title, sink)
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

func (a *sessionProviderAdapter) Restore(id string, sink results.DisplaySink) error {
	return guiErr(a.e.Restore(id, sink))
}

func (a *sessionProviderAdapter) DestroySession(id string) error {
	return guiErr(a.e.Dispose(id))
}

func (a *sessionProviderAdapter) SetActive(id string) error {
	return guiErr(a.e.SetActive(id))
}

func (a *sessionProviderAdapter) Snapshot(id string) (results.FullResults, error) {
	s, ok := a.e.registry.Get(id)
	if !ok {
		return results.FullResults{}, gui.ErrSessionNotFound
	}
	return s.Snapshot(), nil
}

func (a *sessionProviderAdapter) Export(id, format string, w io.Writer) error {
	return guiErr(a.e.Export(id, ExportFormat(format), w))
}

// StartGUIServer starts the display surface of e on host:port.
func StartGUIServer(e *Engine, host string, port int) (stop func(), err error) {
	return gui.StartGUIServer(&sessionProviderAdapter{e: e}, host, port)
}
