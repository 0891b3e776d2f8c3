// Package stream runs SQL against PostgreSQL and pushes the results to a
// display surface in fixed-size batches as they are fetched, keeping
// everything received so the display can be rebuilt without re-running the
// query.
package stream

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"pgresults/internal/config"
	"pgresults/pkg/export"
	"pgresults/pkg/logger"
	"pgresults/pkg/results"
)

// Options tunes the fetch loop. A zero Cooldown fetches the next batch
// immediately.
type Options struct {
	BatchSize int
	Cooldown  time.Duration
	Scheduler Scheduler
}

// OptionsFromConfig builds Options from the stream section of the config.
func OptionsFromConfig(cfg config.StreamConfig) Options {
	return Options{BatchSize: cfg.BatchSize, Cooldown: cfg.Cooldown.Duration}
}

// Engine executes queries and owns their sessions.
type Engine struct {
	source    Source
	registry  *Registry
	scheduler Scheduler
	batchSize int
	cooldown  time.Duration

	// ctx outlives the requests that start executions; cursors read with it.
	ctx    context.Context
	cancel context.CancelFunc

	loadCatalog func(ctx context.Context, q Queryer) (*TypeCatalog, error)
	openCursor  func(ctx context.Context, conn Conn, sessionID, sql string) (Cursor, error)
	newID       func() string
}

func NewEngine(ctx context.Context, source Source, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = config.DefaultBatchSize
	}
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewTimerScheduler()
	}
	engineCtx, cancel := context.WithCancel(ctx)
	return &Engine{
		source:      source,
		registry:    NewRegistry(),
		scheduler:   opts.Scheduler,
		batchSize:   opts.BatchSize,
		cooldown:    opts.Cooldown,
		ctx:         engineCtx,
		cancel:      cancel,
		loadCatalog: LoadTypeCatalog,
		openCursor:  OpenCursor,
		newID:       uuid.NewString,
	}
}

func (e *Engine) Registry() *Registry { return e.registry }

// Execute starts sql and returns its session once the cursor is open; the
// batches are pushed to sink from then on. ctx covers the connection checkout
// and the type catalog load.
//
// A *ConnectionError means nothing was created. A cursor that fails to open
// is reported to sink as an ErrorMessage and the errored session is still
// returned, with a nil error, so it can be restored like any other.
func (e *Engine) Execute(ctx context.Context, sql, title string, sink results.DisplaySink) (*Session, error) {
	conn, err := e.source.Acquire(ctx)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	catalog, err := e.loadCatalog(ctx, conn)
	if err != nil {
		conn.Release()
		return nil, &ConnectionError{Err: err}
	}

	if strings.TrimSpace(title) == "" {
		title = summarizeSQL(sql)
	}
	s := newSession(e.newID(), title, sql, catalog, conn, sink)
	if !e.registry.Add(s) {
		conn.Release()
		return nil, fmt.Errorf("session id %s already registered", s.ID)
	}
	sessionsStarted.Inc()
	sessionsActive.Inc()
	logger.Info("Session %s started: %s", s.ID, title)

	cursor, err := e.openCursor(e.ctx, conn, s.ID, sql)
	if err != nil {
		s.fail(&CursorOpenError{Err: err})
		s.release()
		return s, nil
	}
	if !s.startStreaming(cursor) {
		logger.Debug("Session %s disposed while opening its cursor", s.ID)
		s.release()
		return s, nil
	}
	e.scheduler.Schedule(0, func() { e.fetchNext(s) })
	return s, nil
}

// fetchNext reads one batch of s and re-submits itself after the cooldown
// until the cursor is exhausted, fails, or the session is disposed.
func (e *Engine) fetchNext(s *Session) {
	cursor, ok := s.beginFetch()
	if !ok {
		s.release()
		return
	}

	start := time.Now()
	raw, err := cursor.Read(e.ctx, e.batchSize)
	fetchDuration.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	s.fetching = false
	if s.disposed {
		s.mu.Unlock()
		logger.Debug("Session %s disposed during a fetch; dropping the batch", s.ID)
		s.release()
		return
	}
	if err != nil {
		s.failLocked(&FetchError{Batch: s.batches + 1, Err: err})
		s.mu.Unlock()
		s.release()
		return
	}
	done := s.mergeLocked(raw, e.batchSize)
	s.mu.Unlock()

	if done {
		s.release()
		return
	}
	e.scheduler.Schedule(e.cooldown, func() { e.fetchNext(s) })
}

// Restore resends everything accumulated by session id to sink, which
// replaces the session's previous sink.
func (e *Engine) Restore(id string, sink results.DisplaySink) error {
	s, ok := e.registry.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.restore(sink)
	return nil
}

// Dispose tears session id down. An in-flight fetch notices it when it
// returns and releases the connection itself.
func (e *Engine) Dispose(id string) error {
	s, ok := e.registry.Remove(id)
	if !ok {
		return ErrSessionNotFound
	}
	if s.dispose() {
		s.release()
	}
	logger.Info("Session %s disposed", id)
	return nil
}

// Sessions lists the registered sessions, oldest first.
func (e *Engine) Sessions() []SessionInfo {
	active, _ := e.registry.Active()
	all := e.registry.All()
	list := make([]SessionInfo, len(all))
	for i, s := range all {
		list[i] = s.info()
		list[i].Active = active != nil && active.ID == s.ID
	}
	return list
}

// SetActive marks the session whose display has focus.
func (e *Engine) SetActive(id string) error {
	if !e.registry.SetActive(id) {
		return ErrSessionNotFound
	}
	return nil
}

// ExportFormat selects the output of Export.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// Export writes the results of session id (the active session when id is
// empty) to w.
func (e *Engine) Export(id string, f ExportFormat, w io.Writer) error {
	var (
		s  *Session
		ok bool
	)
	if id == "" {
		s, ok = e.registry.Active()
	} else {
		s, ok = e.registry.Get(id)
	}
	if !ok {
		return ErrSessionNotFound
	}
	snapshot := s.Snapshot()
	switch f {
	case ExportCSV:
		return export.WriteCSV(w, &snapshot)
	case ExportJSON:
		return export.WriteJSON(w, &snapshot)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

// Shutdown disposes every session and waits, at most until ctx ends, for
// their connections to be released.
func (e *Engine) Shutdown(ctx context.Context) error {
	sessions := e.registry.All()
	for _, s := range sessions {
		if err := e.Dispose(s.ID); err != nil {
			logger.Debug("Shutdown: %v", err)
		}
	}
	e.cancel()
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return fmt.Errorf("shutdown: session %s still holds its connection: %w", s.ID, ctx.Err())
		}
	}
	return nil
}

// summarizeSQL makes a title out of sql with its whitespace collapsed.
func summarizeSQL(sql string) string {
	text := strings.Join(strings.Fields(sql), " ")
	const max = 60
	if r := []rune(text); len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return text
}
