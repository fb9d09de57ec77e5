package agent

import (
	"context"

	"github.com/signalsfoundry/skywatch/internal/logging"
	"github.com/signalsfoundry/skywatch/internal/wire"
	"github.com/signalsfoundry/skywatch/model"
)

// On registers a callback for envelopes of the given type and returns an
// unsubscribe function. Callbacks for one type run synchronously in
// registration order as each envelope arrives.
func (a *Agent) On(envelopeType string, fn func(wire.Message)) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextHandle++
	id := a.nextHandle
	a.handlers[envelopeType] = append(a.handlers[envelopeType], handlerEntry{id: id, fn: fn})

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		entries := a.handlers[envelopeType]
		for i, e := range entries {
			if e.id == id {
				a.handlers[envelopeType] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// OnStateChange registers a callback for connection state transitions,
// including the terminal failure after reconnect exhaustion. It returns an
// unsubscribe function.
func (a *Agent) OnStateChange(fn func(State)) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextHandle++
	id := a.nextHandle
	a.stateSubs = append(a.stateSubs, stateEntry{id: id, fn: fn})

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, e := range a.stateSubs {
			if e.id == id {
				a.stateSubs = append(a.stateSubs[:i], a.stateSubs[i+1:]...)
				return
			}
		}
	}
}

// Aircraft returns a snapshot of the local aircraft cache.
func (a *Agent) Aircraft() []model.Aircraft {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.Aircraft{}, a.cache...)
}

// dispatch decodes one inbound frame, merges it into the local cache, and
// routes it to registered callbacks. Malformed frames are logged and
// dropped; the connection stays open.
func (a *Agent) dispatch(raw []byte) {
	msg, err := wire.Decode(raw)
	if err != nil {
		a.log.Warn(context.Background(), "ignoring inbound frame", logging.Err(err))
		return
	}

	a.mergeCache(msg)

	a.mu.Lock()
	entries := append([]handlerEntry{}, a.handlers[wire.TypeOf(msg)]...)
	a.mu.Unlock()

	for _, e := range entries {
		a.invoke(e.fn, msg)
	}
}

// invoke shields the dispatch loop from a panicking callback so delivery
// continues to subsequent callbacks for the same envelope.
func (a *Agent) invoke(fn func(wire.Message), msg wire.Message) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error(context.Background(), "subscriber callback panicked",
				logging.String("type", wire.TypeOf(msg)),
				logging.Any("panic", r),
			)
		}
	}()
	fn(msg)
}

// mergeCache applies envelope-specific cache semantics: a bulk update
// replaces the entire cache; a single update replaces the matching entry
// by id, or appends when absent (appends do not re-sort the cache).
func (a *Agent) mergeCache(msg wire.Message) {
	switch m := msg.(type) {
	case wire.AircraftUpdate:
		a.mu.Lock()
		a.cache = append([]model.Aircraft{}, m.Aircraft...)
		a.mu.Unlock()
	case wire.SingleAircraftUpdate:
		a.mu.Lock()
		replaced := false
		for i := range a.cache {
			if a.cache[i].ID == m.Aircraft.ID {
				a.cache[i] = m.Aircraft
				replaced = true
				break
			}
		}
		if !replaced {
			a.cache = append(a.cache, m.Aircraft)
		}
		a.mu.Unlock()
	}
}

// setStateLocked records a state transition and notifies observers.
// Callers hold a.mu; observer callbacks run outside the lock.
func (a *Agent) setStateLocked(s State) {
	if a.state == s {
		return
	}
	a.state = s
	subs := append([]stateEntry{}, a.stateSubs...)

	go func() {
		for _, e := range subs {
			e.fn(s)
		}
	}()
}
