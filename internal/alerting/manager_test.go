package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/skywatch/core"
	"github.com/signalsfoundry/skywatch/internal/logging"
	"github.com/signalsfoundry/skywatch/internal/wire"
	"github.com/signalsfoundry/skywatch/kb"
	"github.com/signalsfoundry/skywatch/model"
)

type recordingHub struct {
	mu       sync.Mutex
	messages []wire.Message
}

func (h *recordingHub) Broadcast(m wire.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, m)
}

func (h *recordingHub) byType(tag string) []wire.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []wire.Message
	for _, m := range h.messages {
		if wire.TypeOf(m) == tag {
			out = append(out, m)
		}
	}
	return out
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *kb.TrackStore, *recordingHub) {
	t.Helper()
	store := kb.NewTrackStore()
	hub := &recordingHub{}
	return NewManager(store, hub, logging.Noop(), opts...), store, hub
}

func highFinding(a, b int) core.CollisionFinding {
	return core.CollisionFinding{
		AircraftIDs:     [2]int{a, b},
		TimeToCollision: 13.5,
		Severity:        core.SeverityHigh,
	}
}

func TestOnCollisionFindingOnlyHighPersists(t *testing.T) {
	m, store, _ := newTestManager(t)

	for _, sev := range []core.Severity{core.SeverityMedium, core.SeverityLow} {
		n, err := m.OnCollisionFinding(core.CollisionFinding{
			AircraftIDs: [2]int{1, 2}, Severity: sev,
		})
		require.NoError(t, err)
		assert.Nil(t, n, "severity %s must not persist", sev)
	}
	assert.Empty(t, store.ListNotifications())

	n, err := m.OnCollisionFinding(highFinding(1, 2))
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, model.NotificationCollision, n.Type)
	assert.Equal(t, model.PriorityHigh, n.Priority)
	assert.Equal(t, []int{1, 2}, n.AircraftIDs)
}

func TestCollisionDedupWhilePending(t *testing.T) {
	m, store, _ := newTestManager(t)

	first, err := m.OnCollisionFinding(highFinding(1, 2))
	require.NoError(t, err)
	require.NotNil(t, first)

	// The same pair, pass after pass: no second record.
	again, err := m.OnCollisionFinding(highFinding(1, 2))
	require.NoError(t, err)
	assert.Nil(t, again)

	// Pair order must not defeat the dedup key.
	swapped, err := m.OnCollisionFinding(highFinding(2, 1))
	require.NoError(t, err)
	assert.Nil(t, swapped)

	assert.Len(t, store.ListNotifications(), 1)
}

func TestCollisionRecreatedAfterResolve(t *testing.T) {
	m, store, _ := newTestManager(t)

	first, err := m.OnCollisionFinding(highFinding(1, 2))
	require.NoError(t, err)
	_, err = m.Resolve(first.ID)
	require.NoError(t, err)

	// Condition re-occurring after resolution warrants a fresh record.
	second, err := m.OnCollisionFinding(highFinding(1, 2))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, store.ListNotifications(), 2)
}

func TestAirspaceDedupPerAircraftAndRestriction(t *testing.T) {
	m, store, _ := newTestManager(t)
	r, err := store.CreateRestriction(model.Restriction{Name: "R-4401", Type: "restricted"})
	require.NoError(t, err)

	f := core.AirspaceFinding{AircraftID: 1, RestrictionID: r.ID, RestrictionType: "restricted"}
	first, err := m.OnAirspaceFinding(f)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Contains(t, first.Message, "R-4401")

	again, err := m.OnAirspaceFinding(f)
	require.NoError(t, err)
	assert.Nil(t, again)

	// A different restriction is a different condition.
	other, err := m.OnAirspaceFinding(core.AirspaceFinding{AircraftID: 1, RestrictionID: r.ID + 100})
	require.NoError(t, err)
	assert.NotNil(t, other)
}

func TestOnAssistanceFlaggedDedup(t *testing.T) {
	m, store, _ := newTestManager(t)
	a := model.Aircraft{ID: 7, Callsign: "UAL77"}

	first, err := m.OnAssistanceFlagged(a)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, model.NotificationAssistance, first.Type)
	assert.Contains(t, first.Message, "UAL77")

	again, err := m.OnAssistanceFlagged(a)
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Len(t, store.ListNotifications(), 1)
}

func TestOnHandoffNeverDeduplicated(t *testing.T) {
	m, store, _ := newTestManager(t)
	a := model.Aircraft{ID: 3, Callsign: "DAL3"}

	for range 3 {
		n, err := m.OnHandoff(a, 12)
		require.NoError(t, err)
		require.NotNil(t, n)
		assert.Equal(t, model.NotificationHandoff, n.Type)
		assert.Equal(t, model.PriorityNormal, n.Priority)
		assert.Equal(t, 12, n.SectorID)
	}
	assert.Len(t, store.ListNotifications(), 3)
}

func TestResolveStampsOnceAndIsIdempotent(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, _, _ := newTestManager(t, WithClock(func() time.Time { return fixed }))

	created, err := m.OnCollisionFinding(highFinding(1, 2))
	require.NoError(t, err)

	resolved, err := m.Resolve(created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, fixed, *resolved.ResolvedAt)

	// Second resolve returns the same record, timestamp untouched.
	again, err := m.Resolve(created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationResolved, again.Status)
	require.NotNil(t, again.ResolvedAt)
	assert.Equal(t, fixed, *again.ResolvedAt)
}

func TestResolveUnknownID(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Resolve(404)
	assert.True(t, errors.Is(err, kb.ErrNotificationNotFound))
}

func TestAnnouncementsReachHub(t *testing.T) {
	m, _, hub := newTestManager(t)

	created, err := m.OnCollisionFinding(highFinding(1, 2))
	require.NoError(t, err)
	_, err = m.Resolve(created.ID)
	require.NoError(t, err)

	events := hub.byType(wire.TypeNotification)
	require.Len(t, events, 2)
	creation := events[0].(wire.NotificationEvent)
	resolution := events[1].(wire.NotificationEvent)
	assert.Equal(t, model.NotificationPending, creation.Notification.Status)
	assert.Equal(t, model.NotificationResolved, resolution.Notification.Status)
}

func TestRunCollisionPassBroadcastsEveryFinding(t *testing.T) {
	m, store, hub := newTestManager(t)

	mk := func(callsign string, lat, alt float64) {
		lon := 0.0
		_, err := store.CreateAircraft(model.Aircraft{
			Callsign: callsign, Latitude: &lat, Longitude: &lon,
			Altitude: alt, Speed: 400,
		})
		require.NoError(t, err)
	}
	mk("A1", 0, 10000)    // high vs A2
	mk("A2", 0.05, 10500) //
	mk("A3", 0.4, 13200)  // low vs A2 (~21nm, 2700ft); clear of A1 vertically

	findings, err := m.RunCollisionPass(context.Background())
	require.NoError(t, err)
	require.Len(t, findings, 2)

	// Every finding is broadcast regardless of severity.
	assert.Len(t, hub.byType(wire.TypeCollisionAlert), 2)

	// Only the high-severity pair persists.
	pending := store.PendingNotifications()
	require.Len(t, pending, 1)
	assert.Equal(t, model.NotificationCollision, pending[0].Type)
}

func TestRunAirspacePassPersistsViolations(t *testing.T) {
	m, store, hub := newTestManager(t)

	lat, lon := 0.0, 0.0
	_, err := store.CreateAircraft(model.Aircraft{
		Callsign: "N1", Latitude: &lat, Longitude: &lon, Altitude: 3000,
	})
	require.NoError(t, err)

	_, err = store.CreateRestriction(model.Restriction{
		Name: "R-1", Type: "TFR", Active: true,
		Center: &model.Vertex{Lon: 0, Lat: 0}, RadiusNM: 10,
		MinAltitude: 0, MaxAltitude: 5000,
	})
	require.NoError(t, err)

	findings, err := m.RunAirspacePass(context.Background())
	require.NoError(t, err)
	require.Len(t, findings, 1)

	assert.Len(t, hub.byType(wire.TypeAirspaceAlert), 1)
	require.Len(t, store.PendingNotifications(), 1)

	// Same violation next pass: broadcast again, no new record.
	findings, err = m.RunAirspacePass(context.Background())
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Len(t, hub.byType(wire.TypeAirspaceAlert), 2)
	assert.Len(t, store.PendingNotifications(), 1)
}

func TestOverlappingPassesRejected(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.collisionGuard.Lock()
	defer m.collisionGuard.Unlock()

	_, err := m.RunCollisionPass(context.Background())
	assert.ErrorIs(t, err, ErrPassInFlight)

	// The airspace guard is independent.
	_, err = m.RunAirspacePass(context.Background())
	assert.NoError(t, err)
}

type recordingDetectionMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingDetectionMetrics) ObserveDetection(kind, outcome string, findings int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, kind+"/"+outcome)
}

func TestPassMetricsOutcomes(t *testing.T) {
	rec := &recordingDetectionMetrics{}
	m, _, _ := newTestManager(t, WithDetectionRecorder(rec))

	_, err := m.RunCollisionPass(context.Background())
	require.NoError(t, err)

	m.collisionGuard.Lock()
	_, err = m.RunCollisionPass(context.Background())
	m.collisionGuard.Unlock()
	assert.ErrorIs(t, err, ErrPassInFlight)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"collision/ok", "collision/busy"}, rec.outcomes)
}
