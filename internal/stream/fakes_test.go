package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pgresults/pkg/results"
)

var errNotWired = errors.New("not wired in tests")

type fakeConn struct {
	released atomic.Int32
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errNotWired
}

func (c *fakeConn) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errNotWired
}

func (c *fakeConn) Release() {
	c.released.Add(1)
}

type fakeSource struct {
	conn *fakeConn
	err  error
}

func (s *fakeSource) Acquire(ctx context.Context) (Conn, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.conn, nil
}

var intFields = []pgconn.FieldDescription{
	{Name: "id", DataTypeOID: 23},
	{Name: "name", DataTypeOID: 25},
}

// fakeCursor yields total rows (id, name) in reads of at most max rows.
type fakeCursor struct {
	total  int
	failAt int // 1-based read that fails
	onRead func(read int)
	fields func(read int) []pgconn.FieldDescription

	mu     sync.Mutex
	reads  int
	sent   int
	closed int
}

func (c *fakeCursor) Read(ctx context.Context, max int) (RawBatch, error) {
	c.mu.Lock()
	c.reads++
	read := c.reads
	c.mu.Unlock()

	if c.onRead != nil {
		c.onRead(read)
	}
	if read == c.failAt {
		return RawBatch{}, errors.New("boom")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.total - c.sent
	if n > max {
		n = max
	}
	values := make([][]any, n)
	for i := range values {
		id := c.sent + i
		values[i] = []any{int32(id), fmt.Sprintf("row %d", id)}
	}
	c.sent += n

	fields := intFields
	if c.fields != nil {
		fields = c.fields(read)
	}
	batch := RawBatch{Fields: fields, Values: values}
	if n < max {
		batch.Command = results.CommandSelect
		batch.RowCount = int64(c.sent)
	}
	return batch, nil
}

func (c *fakeCursor) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeCursor) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *fakeCursor) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// manualScheduler queues tasks until the test runs them.
type manualScheduler struct {
	mu     sync.Mutex
	tasks  []func()
	delays []time.Duration
}

func (m *manualScheduler) Schedule(delay time.Duration, task func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
	m.delays = append(m.delays, delay)
}

func (m *manualScheduler) Wait() {}

// runNext runs the oldest queued task. It returns false if none is queued.
func (m *manualScheduler) runNext() bool {
	m.mu.Lock()
	if len(m.tasks) == 0 {
		m.mu.Unlock()
		return false
	}
	task := m.tasks[0]
	m.tasks = m.tasks[1:]
	m.mu.Unlock()
	task()
	return true
}

func (m *manualScheduler) runAll() {
	for m.runNext() {
	}
}

func (m *manualScheduler) Delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.delays...)
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []results.Message
}

func (r *recordingSink) Post(msg results.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSink) Messages() []results.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]results.Message(nil), r.msgs...)
}

func testCatalog() *TypeCatalog {
	return NewTypeCatalog([]TypeCatalogEntry{
		{OID: 23, DisplayType: "integer", TypeName: "int4"},
		{OID: 25, DisplayType: "text", TypeName: "text"},
	})
}

type testEngine struct {
	*Engine
	conn  *fakeConn
	sched *manualScheduler
}

// newTestEngine builds an engine with batch size 2 whose executions all
// read from cursor. Session ids are s1, s2, ...
func newTestEngine(t *testing.T, cursor Cursor) *testEngine {
	t.Helper()
	conn := &fakeConn{}
	sched := &manualScheduler{}
	e := NewEngine(context.Background(), &fakeSource{conn: conn}, Options{
		BatchSize: 2,
		Cooldown:  500 * time.Millisecond,
		Scheduler: sched,
	})
	e.loadCatalog = func(ctx context.Context, q Queryer) (*TypeCatalog, error) {
		return testCatalog(), nil
	}
	e.openCursor = func(ctx context.Context, conn Conn, sessionID, sql string) (Cursor, error) {
		return cursor, nil
	}
	var n atomic.Int32
	e.newID = func() string { return fmt.Sprintf("s%d", n.Add(1)) }
	return &testEngine{Engine: e, conn: conn, sched: sched}
}

func dataMessages(t *testing.T, msgs []results.Message) []results.DataMessage {
	t.Helper()
	out := make([]results.DataMessage, 0, len(msgs))
	for _, m := range msgs {
		dm, ok := m.(results.DataMessage)
		if !ok {
			t.Fatalf("message %T is not a DataMessage", m)
		}
		out = append(out, dm)
	}
	return out
}
