package session

import (
	"sync"
	"sync/atomic"
)

// Registry keeps per-user sessions in memory and serializes all flow work
// for one user behind a per-user lock, so concurrent updates from the same
// user cannot interleave mid-flow.
type Registry struct {
	mu    sync.Mutex
	users map[int64]*userEntry
}

// userEntry serializes one user's flow work behind mu. The current state is
// mirrored into an atomic so it can be read without the entry lock; reply
// callbacks fire while the machine still holds mu, and a reply that checks
// the flow state must not block on it.
type userEntry struct {
	mu      sync.Mutex
	session *Session
	state   atomic.Value // State
}

// put replaces the session and refreshes the state mirror. Caller holds e.mu.
func (e *userEntry) put(s *Session) {
	e.session = s
	if s == nil {
		e.state.Store(StateIdle)
		return
	}
	e.state.Store(s.State)
}

// advance moves the current session to next. Caller holds e.mu.
func (e *userEntry) advance(next State) {
	e.session.State = next
	e.state.Store(next)
}

func (e *userEntry) currentState() State {
	if v := e.state.Load(); v != nil {
		return v.(State)
	}
	return StateIdle
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[int64]*userEntry)}
}

// entry returns the lock-carrying slot for a user, creating it on demand.
func (r *Registry) entry(userID int64) *userEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.users[userID]
	if !ok {
		e = &userEntry{}
		r.users[userID] = e
	}
	return e
}

// lookup returns the slot without creating it.
func (r *Registry) lookup(userID int64) (*userEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.users[userID]
	return e, ok
}

// InProgress reports whether the user has an active conversation.
func (r *Registry) InProgress(userID int64) bool {
	return r.StateOf(userID) != StateIdle
}

// StateOf returns the user's current state, StateIdle when no session exists.
func (r *Registry) StateOf(userID int64) State {
	e, ok := r.lookup(userID)
	if !ok {
		return StateIdle
	}
	return e.currentState()
}
