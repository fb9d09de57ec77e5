// Package hub implements the distribution side of the realtime channel:
// a registry of connected observer sessions and best-effort fan-out of
// typed envelopes to all of them.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/skywatch/internal/logging"
	"github.com/signalsfoundry/skywatch/internal/wire"
)

// Conn is the minimal transport a session runs over. The production
// implementation wraps a websocket connection; tests use in-memory fakes.
type Conn interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

// MetricsRecorder receives hub-level metric updates.
type MetricsRecorder interface {
	SetSessionCount(n int)
	IncBroadcast(envelopeType string)
}

// Hub holds the set of connected sessions and broadcasts envelopes to all
// of them. Delivery is fire-and-forget: there is no acknowledgment, no
// retry, and no replay for sessions that are slow or disconnected. A
// session whose transport write fails is dropped from the registry; the
// broadcaster never sees the error.
type Hub struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}

	log     logging.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// Option customises Hub construction.
type Option func(*Hub)

// WithMetrics attaches an optional metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithClock overrides the timestamp source used for pong replies.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// New constructs an empty hub.
func New(log logging.Logger, opts ...Option) *Hub {
	if log == nil {
		log = logging.Noop()
	}
	h := &Hub{
		sessions: make(map[*Session]struct{}),
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register adds a session to the registry and immediately acknowledges the
// connection. A session whose acknowledgment write fails is dropped on the
// spot.
func (h *Hub) Register(s *Session) {
	if s == nil {
		return
	}

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	count := len(h.sessions)
	h.mu.Unlock()

	h.recordSessionCount(count)
	h.log.Info(context.Background(), "session registered",
		logging.String("session_id", s.ID),
		logging.Int("sessions", count),
	)

	if err := h.send(s, wire.Connection{Status: "connected"}); err != nil {
		h.drop(s, "connection ack failed", err)
	}
}

// Unregister removes a session from the registry and closes its transport.
// Unknown sessions are ignored.
func (h *Hub) Unregister(s *Session) {
	if s == nil {
		return
	}

	h.mu.Lock()
	_, known := h.sessions[s]
	delete(h.sessions, s)
	count := len(h.sessions)
	h.mu.Unlock()

	if !known {
		return
	}
	_ = s.conn.Close()
	h.recordSessionCount(count)
	h.log.Info(context.Background(), "session unregistered",
		logging.String("session_id", s.ID),
		logging.Int("sessions", count),
	)
}

// Broadcast delivers the envelope to every currently-registered session.
// Sessions whose writes fail are dropped; no error is surfaced.
func (h *Hub) Broadcast(m wire.Message) {
	raw, err := wire.Encode(m)
	if err != nil {
		h.log.Error(context.Background(), "broadcast encode failed",
			logging.String("type", wire.TypeOf(m)),
			logging.Err(err),
		)
		return
	}

	h.mu.Lock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.IncBroadcast(wire.TypeOf(m))
	}

	for _, s := range targets {
		if err := s.conn.WriteMessage(raw); err != nil {
			h.drop(s, "broadcast write failed", err)
		}
	}
}

// SessionCount returns the number of registered sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// ServeSession runs the session's inbound read loop until the transport
// fails or the context is cancelled. Inbound ping gets a pong with the
// current timestamp; subscribe is recorded on the session but does not
// filter broadcast delivery. Malformed frames are logged and ignored;
// the connection stays open.
func (h *Hub) ServeSession(ctx context.Context, s *Session) {
	defer h.Unregister(s)

	for {
		if ctx.Err() != nil {
			return
		}

		raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := wire.Decode(raw)
		if err != nil {
			h.log.Warn(ctx, "ignoring inbound frame",
				logging.String("session_id", s.ID),
				logging.Err(err),
			)
			continue
		}

		switch m := msg.(type) {
		case wire.Ping:
			if err := h.send(s, wire.Pong{Timestamp: h.now().UnixMilli()}); err != nil {
				h.drop(s, "pong write failed", err)
				return
			}
		case wire.Subscribe:
			s.subscribe(m.Channel)
			h.log.Debug(ctx, "subscription recorded",
				logging.String("session_id", s.ID),
				logging.String("channel", m.Channel),
			)
		default:
			// Server-bound traffic is only ping and subscribe; anything
			// else well-formed is ignored.
			h.log.Debug(ctx, "ignoring unexpected inbound envelope",
				logging.String("session_id", s.ID),
				logging.String("type", wire.TypeOf(msg)),
			)
		}
	}
}

func (h *Hub) send(s *Session, m wire.Message) error {
	raw, err := wire.Encode(m)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(raw)
}

func (h *Hub) drop(s *Session, reason string, err error) {
	h.log.Warn(context.Background(), "dropping session",
		logging.String("session_id", s.ID),
		logging.String("reason", reason),
		logging.Err(err),
	)
	h.Unregister(s)
}

func (h *Hub) recordSessionCount(n int) {
	if h.metrics != nil {
		h.metrics.SetSessionCount(n)
	}
}
