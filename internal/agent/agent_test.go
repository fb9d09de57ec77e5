package agent

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/skywatch/internal/logging"
	"github.com/signalsfoundry/skywatch/internal/wire"
	"github.com/signalsfoundry/skywatch/model"
)

type fakeAgentConn struct {
	mu     sync.Mutex
	writes [][]byte

	inbound   chan []byte
	closeOnce sync.Once
}

func newFakeAgentConn() *fakeAgentConn {
	return &fakeAgentConn{inbound: make(chan []byte, 16)}
}

func (c *fakeAgentConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte{}, data...))
	return nil
}

func (c *fakeAgentConn) ReadMessage() ([]byte, error) {
	raw, ok := <-c.inbound
	if !ok {
		return nil, io.EOF
	}
	return raw, nil
}

func (c *fakeAgentConn) Close() error {
	c.closeOnce.Do(func() { close(c.inbound) })
	return nil
}

// fakeDialer fails the first failures dials, then hands out fresh fake
// connections.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    []*fakeAgentConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("dial refused")
	}
	conn := newFakeAgentConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) lastConn() *fakeAgentConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func waitForState(t *testing.T, a *Agent, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", a.State(), want)
}

func TestBackoffDelayProgression(t *testing.T) {
	base := 3000 * time.Millisecond
	want := []time.Duration{
		3000 * time.Millisecond,
		4500 * time.Millisecond,
		6750 * time.Millisecond,
	}
	for attempt, expected := range want {
		if got := backoffDelay(base, attempt); got != expected {
			t.Fatalf("backoffDelay(attempt %d) = %v, want %v", attempt, got, expected)
		}
	}
}

func TestConnectEstablishesAndPings(t *testing.T) {
	dialer := &fakeDialer{}
	a := New("ws://hub", dialer, logging.Noop())
	defer a.Disconnect()

	a.Connect()
	waitForState(t, a, StateConnected)

	conn := dialer.lastConn()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		conn.mu.Lock()
		n := len(conn.writes)
		conn.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.writes) == 0 {
		t.Fatalf("no initial frame written after connect")
	}
	msg, err := wire.Decode(conn.writes[0])
	if err != nil {
		t.Fatalf("decode initial frame: %v", err)
	}
	if _, ok := msg.(wire.Ping); !ok {
		t.Fatalf("initial frame = %#v, want ping", msg)
	}
}

func TestConnectWhileConnectedIsNoOp(t *testing.T) {
	dialer := &fakeDialer{}
	a := New("ws://hub", dialer, logging.Noop())
	defer a.Disconnect()

	a.Connect()
	waitForState(t, a, StateConnected)

	a.Connect()
	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCount(); got != 1 {
		t.Fatalf("dial count = %d, want 1 (second Connect must be a no-op)", got)
	}
}

func TestReconnectAfterConnectionLoss(t *testing.T) {
	dialer := &fakeDialer{}
	a := New("ws://hub", dialer, logging.Noop(), WithBackoff(5*time.Millisecond, 5))
	defer a.Disconnect()

	a.Connect()
	waitForState(t, a, StateConnected)

	// Kill the transport; the agent must dial again on its own.
	dialer.lastConn().Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && dialer.dialCount() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	if dialer.dialCount() < 2 {
		t.Fatalf("agent never redialed after connection loss")
	}
	waitForState(t, a, StateConnected)
}

func TestFailedStateAfterBudgetExhausted(t *testing.T) {
	dialer := &fakeDialer{failures: 1000}
	a := New("ws://hub", dialer, logging.Noop(), WithBackoff(time.Millisecond, 3))
	defer a.Disconnect()

	a.Connect()
	waitForState(t, a, StateFailed)

	// Initial dial plus three budgeted retries, then nothing more.
	if got := dialer.dialCount(); got != 4 {
		t.Fatalf("dial count = %d, want 4", got)
	}
	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCount(); got != 4 {
		t.Fatalf("dial count grew to %d after terminal failure", got)
	}
}

func TestConnectLeavesFailedState(t *testing.T) {
	dialer := &fakeDialer{failures: 1000}
	a := New("ws://hub", dialer, logging.Noop(), WithBackoff(time.Millisecond, 1))
	defer a.Disconnect()

	a.Connect()
	waitForState(t, a, StateFailed)

	// An explicit Connect resets the budget and tries again.
	dialer.mu.Lock()
	dialer.failures = 0
	dialer.mu.Unlock()

	a.Connect()
	waitForState(t, a, StateConnected)
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	dialer := &fakeDialer{failures: 1000}
	a := New("ws://hub", dialer, logging.Noop(), WithBackoff(50*time.Millisecond, 5))

	a.Connect()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && dialer.dialCount() == 0 {
		time.Sleep(2 * time.Millisecond)
	}

	a.Disconnect()
	settled := dialer.dialCount()
	time.Sleep(150 * time.Millisecond)
	if got := dialer.dialCount(); got != settled {
		t.Fatalf("dial count grew from %d to %d after Disconnect", settled, got)
	}
	if a.State() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", a.State())
	}
}

func TestSendRequiresConnection(t *testing.T) {
	a := New("ws://hub", &fakeDialer{}, logging.Noop())
	if err := a.Send(wire.Ping{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send error = %v, want ErrNotConnected", err)
	}
}

func TestDispatchRegistrationOrder(t *testing.T) {
	a := New("ws://hub", &fakeDialer{}, logging.Noop())

	var mu sync.Mutex
	var order []string
	a.On(wire.TypeNotification, func(wire.Message) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	a.On(wire.TypeNotification, func(wire.Message) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})

	raw, _ := wire.Encode(wire.NotificationEvent{Notification: model.Notification{ID: 1}})
	a.dispatch(raw)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("dispatch order = %v, want [first second]", order)
	}
}

func TestDispatchPanicIsolation(t *testing.T) {
	a := New("ws://hub", &fakeDialer{}, logging.Noop())

	delivered := false
	a.On(wire.TypePong, func(wire.Message) { panic("handler bug") })
	a.On(wire.TypePong, func(wire.Message) { delivered = true })

	raw, _ := wire.Encode(wire.Pong{Timestamp: 1})
	a.dispatch(raw)

	if !delivered {
		t.Fatalf("panicking handler blocked delivery to later handler")
	}
}

func TestDispatchUnsubscribe(t *testing.T) {
	a := New("ws://hub", &fakeDialer{}, logging.Noop())

	calls := 0
	unsubscribe := a.On(wire.TypePong, func(wire.Message) { calls++ })

	raw, _ := wire.Encode(wire.Pong{Timestamp: 1})
	a.dispatch(raw)
	unsubscribe()
	a.dispatch(raw)

	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
}

func TestCacheBulkReplaceAndSingleMerge(t *testing.T) {
	a := New("ws://hub", &fakeDialer{}, logging.Noop())

	bulk, _ := wire.Encode(wire.AircraftUpdate{Aircraft: []model.Aircraft{
		{ID: 1, Callsign: "UAL1"},
		{ID: 2, Callsign: "DAL2"},
	}})
	a.dispatch(bulk)

	if got := a.Aircraft(); len(got) != 2 {
		t.Fatalf("cache size = %d after bulk update, want 2", len(got))
	}

	// Replace by id.
	single, _ := wire.Encode(wire.SingleAircraftUpdate{Aircraft: model.Aircraft{
		ID: 2, Callsign: "DAL2", Altitude: 31000,
	}})
	a.dispatch(single)

	cache := a.Aircraft()
	if len(cache) != 2 {
		t.Fatalf("cache size = %d after merge, want 2", len(cache))
	}
	if cache[1].Altitude != 31000 {
		t.Fatalf("merged record = %+v, want altitude 31000", cache[1])
	}

	// Append when absent.
	fresh, _ := wire.Encode(wire.SingleAircraftUpdate{Aircraft: model.Aircraft{
		ID: 9, Callsign: "SWA9",
	}})
	a.dispatch(fresh)
	if got := a.Aircraft(); len(got) != 3 {
		t.Fatalf("cache size = %d after append, want 3", len(got))
	}

	// A later bulk update replaces everything.
	empty, _ := wire.Encode(wire.AircraftUpdate{})
	a.dispatch(empty)
	if got := a.Aircraft(); len(got) != 0 {
		t.Fatalf("cache size = %d after empty bulk update, want 0", len(got))
	}
}

func TestOnStateChangeNotifications(t *testing.T) {
	dialer := &fakeDialer{}
	a := New("ws://hub", dialer, logging.Noop())
	defer a.Disconnect()

	states := make(chan State, 8)
	a.OnStateChange(func(s State) { states <- s })

	a.Connect()

	// Observer goroutines are not ordered relative to each other; assert
	// on the set of states seen, not their sequence.
	seen := map[State]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case s := <-states:
			seen[s] = true
		case <-deadline:
			t.Fatalf("saw states %v, want connecting and connected", seen)
		}
	}
	if !seen[StateConnecting] || !seen[StateConnected] {
		t.Fatalf("states = %v, want connecting and connected", seen)
	}
}
