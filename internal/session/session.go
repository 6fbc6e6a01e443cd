// Package session manages the long-lived SSE connections and the delivery
// of asynchronous reply events to them.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1F47E/mcp-telegram/internal/logging"
)

// eventQueueSize bounds how many undelivered events one session may hold.
// When the queue is full, further events are dropped.
const eventQueueSize = 100

// Event is one server-to-client frame: the SSE event name plus its payload.
type Event struct {
	Name string
	Data string
}

// Session is one open streaming connection and its reply sink. A session is
// created on connect, transitions to closed exactly once, and is never
// resurrected.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu     sync.Mutex
	closed bool
	events chan Event
}

func newSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		events:    make(chan Event, eventQueueSize),
	}
}

// Push enqueues an event for delivery on the stream. It reports false when
// the session is closed or its queue is full; the event is dropped in both
// cases, there is no redelivery.
func (s *Session) Push(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// Events exposes the delivery channel consumed by the stream writer. The
// channel is closed when the session closes.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// Registry tracks open sessions. It is owned by the server instance and
// guarded by a single mutex; sessions are mutated only on open/close and
// looked up on reply delivery.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	log      *slog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = logging.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		log:      log.With("component", "session"),
	}
}

// Open allocates a session id and registers the session as a reply sink.
func (r *Registry) Open() *Session {
	s := newSession()

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.log.Info("session opened", "session_id", s.ID)
	return s
}

// Get looks up an open session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close deregisters and tears down a session. Replies completing afterwards
// are discarded by Push. Closing an unknown or already-closed session is a
// no-op.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	r.log.Info("session closed", "session_id", id)
}

// CloseAll tears down every open session; used on server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
