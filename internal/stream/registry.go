package stream

import (
	"sort"
	"sync"
)

// Registry maps session ids to sessions so a recreated display can find its
// results again. It also remembers which session's display has focus.
type Registry struct {
	sessions map[string]*Session
	active   string
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers s. It returns false if the id is already taken.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID]; exists {
		return false
	}
	r.sessions[s.ID] = s
	return true
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove unregisters id and returns the removed session.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	if r.active == id {
		r.active = ""
	}
	return s, true
}

// All returns the registered sessions, oldest first.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SetActive marks id as the focused session. Unknown ids are rejected.
func (r *Registry) SetActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	r.active = id
	return true
}

// Active returns the focused session, if any.
func (r *Registry) Active() (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return nil, false
	}
	s, ok := r.sessions[r.active]
	return s, ok
}
