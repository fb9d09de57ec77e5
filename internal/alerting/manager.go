// Package alerting turns detector findings and explicit events into a
// deduplicated notification lifecycle, persisting records through the
// track store and announcing them through the distribution hub.
package alerting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/signalsfoundry/skywatch/core"
	"github.com/signalsfoundry/skywatch/internal/logging"
	"github.com/signalsfoundry/skywatch/internal/wire"
	"github.com/signalsfoundry/skywatch/kb"
	"github.com/signalsfoundry/skywatch/model"
)

// Broadcaster is the distribution side the manager announces through.
type Broadcaster interface {
	Broadcast(m wire.Message)
}

// DetectionRecorder receives one observation per detection pass.
type DetectionRecorder interface {
	ObserveDetection(kind, outcome string, findings int, elapsed time.Duration)
}

// Manager owns the notification lifecycle. For a given unresolved logical
// condition (same aircraft pair and type, or same aircraft, restriction
// and type) repeated detection passes do not create a second notification
// while the prior one is pending; only no-condition to condition, or
// resolved to re-occurring condition, creates a new record.
type Manager struct {
	store *kb.TrackStore
	hub   Broadcaster
	log   logging.Logger

	mu           sync.Mutex
	pendingByKey map[string]int
	keyByID      map[int]string

	// One in-flight guard per detection kind: overlapping external
	// triggers are rejected instead of racing each other.
	collisionGuard sync.Mutex
	airspaceGuard  sync.Mutex

	metrics DetectionRecorder
	now     func() time.Time
}

// Option customises Manager construction.
type Option func(*Manager)

// WithDetectionRecorder attaches an optional metrics recorder for passes.
func WithDetectionRecorder(m DetectionRecorder) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithClock overrides the resolution timestamp source.
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) { mgr.now = now }
}

// NewManager wires the manager to its store and broadcaster.
func NewManager(store *kb.TrackStore, hub Broadcaster, log logging.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logging.Noop()
	}
	m := &Manager{
		store:        store,
		hub:          hub,
		log:          log,
		pendingByKey: make(map[string]int),
		keyByID:      make(map[int]string),
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// OnCollisionFinding persists a notification for a high-severity finding.
// Medium and low findings are informational: they are broadcast by the
// detection pass but never persisted.
func (m *Manager) OnCollisionFinding(f core.CollisionFinding) (*model.Notification, error) {
	if f.Severity != core.SeverityHigh {
		return nil, nil
	}

	key := collisionKey(f.AircraftIDs[0], f.AircraftIDs[1])
	n := model.Notification{
		Type:        model.NotificationCollision,
		Priority:    model.PriorityHigh,
		Title:       "Collision risk",
		Message:     fmt.Sprintf("%s and %s within high-severity separation, est. %.0fs to collision", m.callsign(f.AircraftIDs[0]), m.callsign(f.AircraftIDs[1]), f.TimeToCollision),
		AircraftIDs: []int{f.AircraftIDs[0], f.AircraftIDs[1]},
	}
	return m.createDeduped(key, n)
}

// OnAirspaceFinding persists a notification for every airspace violation,
// deduplicated per aircraft and restriction while pending.
func (m *Manager) OnAirspaceFinding(f core.AirspaceFinding) (*model.Notification, error) {
	key := airspaceKey(f.AircraftID, f.RestrictionID)

	name := fmt.Sprintf("restriction %d", f.RestrictionID)
	if r, err := m.store.GetRestriction(f.RestrictionID); err == nil {
		name = r.Name
	}
	n := model.Notification{
		Type:        model.NotificationAirspace,
		Priority:    model.PriorityHigh,
		Title:       "Airspace violation",
		Message:     fmt.Sprintf("%s inside %s (%s)", m.callsign(f.AircraftID), name, f.RestrictionType),
		AircraftIDs: []int{f.AircraftID},
	}
	return m.createDeduped(key, n)
}

// OnAssistanceFlagged persists a notification when an aircraft's
// assistance flag transitions to true.
func (m *Manager) OnAssistanceFlagged(a model.Aircraft) (*model.Notification, error) {
	key := fmt.Sprintf("assistance:%d", a.ID)
	n := model.Notification{
		Type:        model.NotificationAssistance,
		Priority:    model.PriorityHigh,
		Title:       "Assistance requested",
		Message:     fmt.Sprintf("%s has flagged for assistance", displayName(a)),
		AircraftIDs: []int{a.ID},
		SectorID:    a.SectorID,
	}
	return m.createDeduped(key, n)
}

// OnHandoff records a sector handoff. Handoffs are discrete events, not
// persistent conditions, so they are never deduplicated.
func (m *Manager) OnHandoff(a model.Aircraft, sectorID int) (*model.Notification, error) {
	n := model.Notification{
		Type:        model.NotificationHandoff,
		Priority:    model.PriorityNormal,
		Title:       "Sector handoff",
		Message:     fmt.Sprintf("%s handed off to sector %d", displayName(a), sectorID),
		AircraftIDs: []int{a.ID},
		SectorID:    sectorID,
	}
	created, err := m.store.CreateNotification(n)
	if err != nil {
		return nil, err
	}
	m.announce(created)
	return &created, nil
}

// Resolve transitions a pending notification to resolved and stamps
// ResolvedAt exactly once. Resolving an already-resolved notification is a
// no-op that returns the existing record; an unknown id returns the
// store's not-found error.
func (m *Manager) Resolve(id int) (model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.GetNotification(id)
	if err != nil {
		return model.Notification{}, err
	}
	if existing.Status == model.NotificationResolved {
		return existing, nil
	}

	resolvedAt := m.now().UTC()
	updated, err := m.store.UpdateNotification(id, func(n *model.Notification) {
		n.Status = model.NotificationResolved
		n.ResolvedAt = &resolvedAt
	})
	if err != nil {
		return model.Notification{}, err
	}

	if key, ok := m.keyByID[id]; ok {
		delete(m.keyByID, id)
		delete(m.pendingByKey, key)
	}

	m.announce(updated)
	return updated, nil
}

// createDeduped persists the notification unless an earlier one for the
// same condition key is still pending.
func (m *Manager) createDeduped(key string, n model.Notification) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.pendingByKey[key]; ok {
		if existing, err := m.store.GetNotification(id); err == nil && existing.Status == model.NotificationPending {
			return nil, nil
		}
		// The record was resolved or deleted behind our back; the
		// condition re-occurring warrants a fresh notification.
		delete(m.pendingByKey, key)
		delete(m.keyByID, id)
	}

	created, err := m.store.CreateNotification(n)
	if err != nil {
		return nil, err
	}
	m.pendingByKey[key] = created.ID
	m.keyByID[created.ID] = key

	m.announce(created)
	return &created, nil
}

// announce broadcasts a created or updated record; delivery is
// best-effort by contract, so there is nothing to propagate.
func (m *Manager) announce(n model.Notification) {
	if m.hub == nil {
		return
	}
	m.hub.Broadcast(wire.NotificationEvent{Notification: n})
	m.log.Debug(context.Background(), "notification announced",
		logging.Int("id", n.ID),
		logging.String("type", string(n.Type)),
		logging.String("status", string(n.Status)),
	)
}

func (m *Manager) callsign(aircraftID int) string {
	if a, err := m.store.GetAircraft(aircraftID); err == nil {
		return displayName(a)
	}
	return fmt.Sprintf("aircraft %d", aircraftID)
}

func displayName(a model.Aircraft) string {
	if s := strings.TrimSpace(a.Callsign); s != "" {
		return s
	}
	return fmt.Sprintf("aircraft %d", a.ID)
}

func collisionKey(a, b int) string {
	pair := []int{a, b}
	sort.Ints(pair)
	return fmt.Sprintf("collision:%d-%d", pair[0], pair[1])
}

func airspaceKey(aircraftID, restrictionID int) string {
	return fmt.Sprintf("airspace:%d:%d", aircraftID, restrictionID)
}
