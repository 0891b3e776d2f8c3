package stream

import (
	"context"
	"sync"
	"time"

	"pgresults/pkg/format"
	"pgresults/pkg/logger"
	"pgresults/pkg/results"
)

// closeTimeout bounds the best-effort CLOSE/COMMIT sent when a session lets go
// of its cursor.
const closeTimeout = 5 * time.Second

type SessionState int

const (
	StateInitializing SessionState = iota
	StateStreaming
	StateCompleted
	StateErrored
	StateDisposed
)

func (s SessionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Session is the state of one query execution, from cursor open to disposal.
// It owns exactly one connection and releases it exactly once.
type Session struct {
	ID        string
	Title     string
	SQL       string
	CreatedAt time.Time

	mu       sync.Mutex
	state    SessionState
	full     results.FullResults
	lastErr  error
	batches  int
	fetching bool
	disposed bool
	catalog  *TypeCatalog
	cursor   Cursor
	conn     Conn
	sink     results.DisplaySink

	releaseOnce sync.Once
	done        chan struct{}
}

func newSession(id, title, sql string, catalog *TypeCatalog, conn Conn, sink results.DisplaySink) *Session {
	return &Session{
		ID:        id,
		Title:     title,
		SQL:       sql,
		CreatedAt: time.Now(),
		state:     StateInitializing,
		catalog:   catalog,
		conn:      conn,
		sink:      sink,
		done:      make(chan struct{}),
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error that ended the session, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Snapshot returns a copy of everything accumulated so far.
func (s *Session) Snapshot() results.FullResults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.full.Clone()
}

// Done is closed once the session has released its connection.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// post sends msg to the current sink. Caller holds s.mu.
func (s *Session) post(msg results.Message) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Post(msg); err != nil {
		logger.Warn("Session %s: display did not accept %s message: %v", s.ID, msg.MessageKind(), err)
	}
}

// failLocked records err as terminal and reports it. Caller holds s.mu.
func (s *Session) failLocked(err error) {
	s.lastErr = err
	if s.disposed {
		return
	}
	s.state = StateErrored
	logger.Error("Session %s: %v", s.ID, err)
	s.post(results.NewErrorMessage(displayMessage(err)))
}

// fail is failLocked for callers that do not hold the lock.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(err)
}

// startStreaming hands the opened cursor to the session. It returns false if
// the session was disposed while the cursor was being opened; the cursor is
// kept so release closes it.
func (s *Session) startStreaming(cursor Cursor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
	if s.disposed {
		return false
	}
	s.state = StateStreaming
	return true
}

// beginFetch marks a fetch as in flight and returns the cursor to read from.
func (s *Session) beginFetch() (Cursor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.state != StateStreaming || s.cursor == nil {
		return nil, false
	}
	s.fetching = true
	return s.cursor, true
}

// dispose flags the session as torn down. It reports whether the caller may
// release right away: when a fetch is in flight, or the cursor is still being
// opened, the goroutine doing that work releases instead.
func (s *Session) dispose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return false
	}
	s.disposed = true
	prev := s.state
	s.state = StateDisposed
	return !s.fetching && prev != StateInitializing
}

// release closes the cursor and gives the connection back. Only the first
// call does anything.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		cursor, conn, state := s.cursor, s.conn, s.state
		s.cursor, s.conn = nil, nil
		s.mu.Unlock()

		if cursor != nil {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			if err := cursor.Close(ctx); err != nil {
				logger.Warn("Session %s: failed to close cursor: %v", s.ID, err)
			}
			cancel()
		}
		if conn != nil {
			conn.Release()
		}
		sessionsActive.Dec()
		sessionsFinished.WithLabelValues(state.String()).Inc()
		logger.Debug("Session %s: connection released (%s)", s.ID, state)
		close(s.done)
	})
}

// mergeLocked turns raw into a batch, accumulates it and pushes it. It
// reports whether the cursor is exhausted. Caller holds s.mu.
func (s *Session) mergeLocked(raw RawBatch, batchSize int) bool {
	s.batches++

	var fields []results.Field
	if s.full.HasFields() && sameDescShape(s.full.Fields, raw.Fields) {
		fields = s.full.Fields
	} else {
		fields = s.catalog.Fields(raw.Fields)
	}
	rows := make([]results.Row, len(raw.Values))
	for i, values := range raw.Values {
		rows[i] = results.NewRow(values)
	}
	batch := results.Batch{Command: raw.Command, RowCount: raw.RowCount, Fields: fields, Rows: rows}

	offset, err := s.full.Merge(batch)
	if err != nil {
		logger.Warn("Session %s: batch %d: %v; keeping the first field list", s.ID, s.batches, err)
	}
	batchesFetched.Inc()
	rowsFetched.Add(float64(len(rows)))

	done := len(rows) < batchSize
	if done {
		s.state = StateCompleted
	}
	summary := format.Summary(&s.full)
	logger.Debug("Session %s: batch %d merged at offset %d (%d rows)", s.ID, s.batches, offset, len(rows))
	if done {
		logger.Info("Session %s completed after %d batches: %s", s.ID, s.batches, summary)
	}

	s.post(results.DataMessage{
		Command: results.CommandPtr(batch.Command),
		Summary: summary,
		Results: results.NewPage(s.full.Fields, rows),
		Offset:  offset,
	})
	return done
}

// restore points the session at sink and sends it everything accumulated,
// or the terminal error.
func (s *Session) restore(sink results.DisplaySink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
	if s.state == StateErrored && s.lastErr != nil {
		s.post(results.NewErrorMessage(displayMessage(s.lastErr)))
		return
	}
	s.post(results.DataMessage{
		Command: results.CommandPtr(s.full.Command),
		Summary: format.Summary(&s.full),
		Results: results.NewPage(s.full.Fields, append([]results.Row(nil), s.full.Rows...)),
		Offset:  0,
	})
}

// SessionInfo is a read-only view of a session for listings.
type SessionInfo struct {
	ID        string
	Title     string
	SQL       string
	State     SessionState
	Command   results.CommandKind
	Rows      int
	Batches   int
	Error     string
	Active    bool
	CreatedAt time.Time
}

func (s *Session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{
		ID:        s.ID,
		Title:     s.Title,
		SQL:       s.SQL,
		State:     s.state,
		Command:   s.full.Command,
		Rows:      len(s.full.Rows),
		Batches:   s.batches,
		CreatedAt: s.CreatedAt,
	}
	if s.lastErr != nil {
		info.Error = displayMessage(s.lastErr)
	}
	return info
}
