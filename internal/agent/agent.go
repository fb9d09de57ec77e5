// Package agent implements the client side of the realtime channel: a
// single owned connection to the distribution hub, reconnection with
// exponential backoff, typed dispatch to local subscribers, and a local
// aircraft cache kept current from snapshot and delta envelopes.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/signalsfoundry/skywatch/internal/logging"
	"github.com/signalsfoundry/skywatch/internal/wire"
	"github.com/signalsfoundry/skywatch/model"
)

// ErrNotConnected is returned by Send when no connection is established.
var ErrNotConnected = errors.New("agent not connected")

// Conn is the transport the agent runs over; production code uses the
// websocket dialer, tests use in-memory fakes.
type Conn interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer establishes transport connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// State is the agent's connection state. Failed is terminal: it is entered
// when the reconnect budget is exhausted and left only by an explicit
// Connect call.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

const (
	defaultBaseDelay   = 3 * time.Second
	defaultMaxAttempts = 5
)

type handlerEntry struct {
	id int
	fn func(wire.Message)
}

type stateEntry struct {
	id int
	fn func(State)
}

// Agent owns exactly one logical connection to the distribution hub.
type Agent struct {
	url    string
	dialer Dialer
	log    logging.Logger

	baseDelay   time.Duration
	maxAttempts int

	mu             sync.Mutex
	state          State
	conn           Conn
	attempts       int
	generation     int
	closed         bool
	reconnectTimer *time.Timer

	handlers   map[string][]handlerEntry
	stateSubs  []stateEntry
	nextHandle int

	cache []model.Aircraft
}

// Option customises Agent construction.
type Option func(*Agent)

// WithBackoff overrides the reconnect base delay and attempt budget.
func WithBackoff(base time.Duration, maxAttempts int) Option {
	return func(a *Agent) {
		if base > 0 {
			a.baseDelay = base
		}
		if maxAttempts > 0 {
			a.maxAttempts = maxAttempts
		}
	}
}

// New constructs an agent for the given hub URL. No connection is made
// until Connect is called.
func New(url string, dialer Dialer, log logging.Logger, opts ...Option) *Agent {
	if log == nil {
		log = logging.Noop()
	}
	a := &Agent{
		url:         url,
		dialer:      dialer,
		log:         log,
		baseDelay:   defaultBaseDelay,
		maxAttempts: defaultMaxAttempts,
		state:       StateDisconnected,
		handlers:    make(map[string][]handlerEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Connect starts a connection attempt series. Calling Connect while
// already connected or connecting is a no-op.
func (a *Agent) Connect() {
	a.mu.Lock()
	if a.state == StateConnected || a.state == StateConnecting {
		a.mu.Unlock()
		return
	}
	a.closed = false
	a.attempts = 0
	a.generation++
	gen := a.generation
	a.setStateLocked(StateConnecting)
	a.mu.Unlock()

	go a.dial(gen)
}

// Disconnect tears the connection down: it closes the transport, cancels
// any pending reconnect timer unconditionally, and clears connected state.
// Idempotent.
func (a *Agent) Disconnect() {
	a.mu.Lock()
	a.closed = true
	a.generation++
	if a.reconnectTimer != nil {
		a.reconnectTimer.Stop()
		a.reconnectTimer = nil
	}
	conn := a.conn
	a.conn = nil
	changed := a.state != StateDisconnected
	if changed {
		a.setStateLocked(StateDisconnected)
	}
	a.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Send writes an envelope on the current connection.
func (a *Agent) Send(m wire.Message) error {
	a.mu.Lock()
	conn := a.conn
	connected := a.state == StateConnected
	a.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	raw, err := wire.Encode(m)
	if err != nil {
		return err
	}
	return conn.WriteMessage(raw)
}

// State returns the current connection state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// dial performs one connection attempt for the given attempt series.
func (a *Agent) dial(gen int) {
	conn, err := a.dialer.Dial(context.Background(), a.url)

	a.mu.Lock()
	if a.closed || gen != a.generation {
		a.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		a.log.Warn(context.Background(), "hub connection failed", logging.Err(err))
		a.scheduleReconnectLocked(gen)
		a.mu.Unlock()
		return
	}

	a.conn = conn
	a.attempts = 0
	a.setStateLocked(StateConnected)
	a.mu.Unlock()

	a.log.Info(context.Background(), "connected to hub", logging.String("url", a.url))
	_ = a.Send(wire.Ping{})
	go a.readLoop(conn, gen)
}

func (a *Agent) readLoop(conn Conn, gen int) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			a.mu.Lock()
			if a.closed || gen != a.generation {
				a.mu.Unlock()
				return
			}
			a.conn = nil
			a.log.Warn(context.Background(), "hub connection lost", logging.Err(err))
			a.scheduleReconnectLocked(gen)
			a.mu.Unlock()
			return
		}
		a.dispatch(raw)
	}
}

// scheduleReconnectLocked arms the reconnect timer for the next attempt in
// the series, or enters the terminal Failed state once the budget is
// spent. Callers hold a.mu.
func (a *Agent) scheduleReconnectLocked(gen int) {
	if a.attempts >= a.maxAttempts {
		a.log.Error(context.Background(), "reconnect attempts exhausted",
			logging.Int("attempts", a.attempts),
		)
		a.setStateLocked(StateFailed)
		return
	}

	delay := backoffDelay(a.baseDelay, a.attempts)
	a.attempts++
	a.setStateLocked(StateConnecting)
	a.log.Info(context.Background(), "scheduling reconnect",
		logging.Int("attempt", a.attempts),
		logging.Duration("delay", delay),
	)

	a.reconnectTimer = time.AfterFunc(delay, func() {
		a.mu.Lock()
		if a.closed || gen != a.generation {
			a.mu.Unlock()
			return
		}
		a.reconnectTimer = nil
		a.mu.Unlock()
		a.dial(gen)
	})
}

// backoffDelay returns base * 1.5^attempt.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := float64(base)
	for i := 0; i < attempt; i++ {
		d *= 1.5
	}
	return time.Duration(d)
}
