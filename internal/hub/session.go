package hub

import (
	"sync"

	"github.com/google/uuid"
)

// Session is one long-lived connection between the hub and a single
// synchronization agent.
type Session struct {
	ID   string
	conn Conn

	mu       sync.Mutex
	channels map[string]struct{}
}

// NewSession wraps a transport connection in a session with a fresh ID.
func NewSession(conn Conn) *Session {
	return &Session{
		ID:       uuid.NewString(),
		conn:     conn,
		channels: make(map[string]struct{}),
	}
}

func (s *Session) subscribe(channel string) {
	if channel == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel] = struct{}{}
}

// Subscriptions returns the channels the session has declared interest in.
// Declared subscriptions are informational: broadcast delivery is not
// filtered by them.
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		res = append(res, ch)
	}
	return res
}
