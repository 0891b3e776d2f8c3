package gui

import (
	"errors"
	"sync"

	"pgresults/pkg/results"
)

const panelBuffer = 64

var (
	ErrPanelClosed = errors.New("panel closed")
	ErrPanelFull   = errors.New("panel buffer full")
)

// Panel is the display of one session: a buffered queue of push messages
// drained by the event stream. Post never blocks; when the buffer is full
// the message is dropped and the panel is marked stale, so the reader
// restores it from offset 0.
type Panel struct {
	ch     chan results.Message
	mu     sync.Mutex
	closed bool
	stale  bool
	reader bool
}

func NewPanel(buffer int) *Panel {
	if buffer <= 0 {
		buffer = panelBuffer
	}
	return &Panel{ch: make(chan results.Message, buffer)}
}

func (p *Panel) Post(msg results.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPanelClosed
	}
	select {
	case p.ch <- msg:
		return nil
	default:
		p.stale = true
		return ErrPanelFull
	}
}

func (p *Panel) Messages() <-chan results.Message {
	return p.ch
}

// takeStale reports and clears the stale flag, discarding whatever is
// still queued.
func (p *Panel) takeStale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stale {
		return false
	}
	p.stale = false
	for {
		select {
		case _, ok := <-p.ch:
			if !ok {
				return true
			}
		default:
			return true
		}
	}
}

// claim makes the caller the panel's only reader. It fails if the panel
// already has one.
func (p *Panel) claim() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reader || p.closed {
		return false
	}
	p.reader = true
	return true
}

// Close stops the panel from accepting messages. Queued messages can still
// be read.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
}

// panels maps session ids to their current display.
type panels struct {
	byID map[string]*Panel
	mu   sync.Mutex
}

func newPanels() *panels {
	return &panels{byID: make(map[string]*Panel)}
}

func (ps *panels) get(id string) (*Panel, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.byID[id]
	return p, ok
}

// replace installs p for id and closes the display it replaces.
func (ps *panels) replace(id string, p *Panel) {
	ps.mu.Lock()
	old := ps.byID[id]
	ps.byID[id] = p
	ps.mu.Unlock()
	if old != nil && old != p {
		old.Close()
	}
}

func (ps *panels) remove(id string) {
	ps.mu.Lock()
	p := ps.byID[id]
	delete(ps.byID, id)
	ps.mu.Unlock()
	if p != nil {
		p.Close()
	}
}
