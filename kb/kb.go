package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/skywatch/model"
)

var (
	ErrAircraftNotFound     = errors.New("aircraft not found")
	ErrDuplicateCallsign    = errors.New("callsign already tracked")
	ErrRestrictionNotFound  = errors.New("restriction not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrDataSourceNotFound   = errors.New("data source not found")
	ErrInvalidRecord        = errors.New("invalid record")
)

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventAircraftCreated EventType = iota
	EventAircraftUpdated
	EventAircraftDeleted
	EventDataSourceUpdated
)

// Event is emitted to subscribers after a mutation commits. Records are
// copies; subscribers may keep them.
type Event struct {
	Type       EventType
	Aircraft   model.Aircraft
	DataSource model.DataSource
}

// CountsRecorder receives entity-count updates after every mutation; the
// observability collector implements it to drive gauges.
type CountsRecorder interface {
	SetTrackCounts(aircraft, restrictions, pendingNotifications, sources int)
}

// TrackStore is the in-memory, thread-safe authority for Aircraft,
// Restriction, Notification, and DataSource records. Reads return copies;
// mutations go through the typed methods so subscribers and metrics stay
// consistent with the data.
type TrackStore struct {
	mu sync.RWMutex

	aircraft      map[int]model.Aircraft
	restrictions  map[int]model.Restriction
	notifications map[int]model.Notification
	sources       map[int]model.DataSource

	nextAircraftID     int
	nextRestrictionID  int
	nextNotificationID int
	nextSourceID       int

	subs    []func(Event)
	metrics CountsRecorder
}

// Option customises TrackStore construction.
type Option func(*TrackStore)

// WithCountsRecorder attaches an optional metrics recorder for entity counts.
func WithCountsRecorder(m CountsRecorder) Option {
	return func(s *TrackStore) { s.metrics = m }
}

// NewTrackStore constructs an empty store.
func NewTrackStore(opts ...Option) *TrackStore {
	s := &TrackStore{
		aircraft:           make(map[int]model.Aircraft),
		restrictions:       make(map[int]model.Restriction),
		notifications:      make(map[int]model.Notification),
		sources:            make(map[int]model.DataSource),
		nextAircraftID:     1,
		nextRestrictionID:  1,
		nextNotificationID: 1,
		nextSourceID:       1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Subscribe registers a callback for store events. It returns an
// unsubscribe function. Callbacks run outside the store lock.
func (s *TrackStore) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
	idx := len(s.subs) - 1

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < 0 || idx >= len(s.subs) {
			return
		}
		s.subs = append(s.subs[:idx], s.subs[idx+1:]...)
		idx = -1
	}
}

//
// ---------- Aircraft ----------
//

// CreateAircraft stores a new aircraft, assigning an ID when none is set.
// Callsigns are unique in practice; duplicates are rejected.
func (s *TrackStore) CreateAircraft(a model.Aircraft) (model.Aircraft, error) {
	if a.Callsign == "" {
		return model.Aircraft{}, fmt.Errorf("%w: empty callsign", ErrInvalidRecord)
	}

	s.mu.Lock()
	for _, existing := range s.aircraft {
		if existing.Callsign == a.Callsign {
			s.mu.Unlock()
			return model.Aircraft{}, fmt.Errorf("%w: %s", ErrDuplicateCallsign, a.Callsign)
		}
	}
	if a.ID == 0 {
		a.ID = s.nextAircraftID
	}
	if a.ID >= s.nextAircraftID {
		s.nextAircraftID = a.ID + 1
	}
	if a.VerificationStatus == "" {
		a.VerificationStatus = model.StatusUnverified
	}
	s.aircraft[a.ID] = cloneAircraft(a)
	subs := s.snapshotSubsLocked()
	s.updateMetricsLocked()
	s.mu.Unlock()

	s.notify(subs, Event{Type: EventAircraftCreated, Aircraft: a})
	return a, nil
}

// GetAircraft returns a copy of the aircraft with the given ID.
func (s *TrackStore) GetAircraft(id int) (model.Aircraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.aircraft[id]
	if !ok {
		return model.Aircraft{}, fmt.Errorf("%w: id %d", ErrAircraftNotFound, id)
	}
	return cloneAircraft(a), nil
}

// ListAircraft returns a snapshot of all aircraft ordered by ID.
func (s *TrackStore) ListAircraft() []model.Aircraft {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]model.Aircraft, 0, len(s.aircraft))
	for _, a := range s.aircraft {
		res = append(res, cloneAircraft(a))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// UpdateAircraft applies a mutation under the store lock and returns the
// updated record. The apply function receives a copy to mutate; ID and
// callsign changes are ignored.
func (s *TrackStore) UpdateAircraft(id int, apply func(*model.Aircraft)) (model.Aircraft, error) {
	if apply == nil {
		return s.GetAircraft(id)
	}

	s.mu.Lock()
	current, ok := s.aircraft[id]
	if !ok {
		s.mu.Unlock()
		return model.Aircraft{}, fmt.Errorf("%w: id %d", ErrAircraftNotFound, id)
	}
	updated := cloneAircraft(current)
	apply(&updated)
	updated.ID = current.ID
	updated.Callsign = current.Callsign
	s.aircraft[id] = cloneAircraft(updated)
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	s.notify(subs, Event{Type: EventAircraftUpdated, Aircraft: updated})
	return updated, nil
}

// DeleteAircraft removes the aircraft. Pending notifications referencing
// it are left alone; notification aircraft references are weak.
func (s *TrackStore) DeleteAircraft(id int) error {
	s.mu.Lock()
	a, ok := s.aircraft[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: id %d", ErrAircraftNotFound, id)
	}
	delete(s.aircraft, id)
	subs := s.snapshotSubsLocked()
	s.updateMetricsLocked()
	s.mu.Unlock()

	s.notify(subs, Event{Type: EventAircraftDeleted, Aircraft: a})
	return nil
}

//
// ---------- Restrictions ----------
//

func (s *TrackStore) CreateRestriction(r model.Restriction) (model.Restriction, error) {
	if r.Name == "" {
		return model.Restriction{}, fmt.Errorf("%w: empty restriction name", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.nextRestrictionID
	}
	if r.ID >= s.nextRestrictionID {
		s.nextRestrictionID = r.ID + 1
	}
	s.restrictions[r.ID] = r
	s.updateMetricsLocked()
	return r, nil
}

func (s *TrackStore) GetRestriction(id int) (model.Restriction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.restrictions[id]
	if !ok {
		return model.Restriction{}, fmt.Errorf("%w: id %d", ErrRestrictionNotFound, id)
	}
	return r, nil
}

func (s *TrackStore) ListRestrictions() []model.Restriction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]model.Restriction, 0, len(s.restrictions))
	for _, r := range s.restrictions {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// ActiveRestrictions returns restrictions that are flagged active and
// whose optional time window contains now.
func (s *TrackStore) ActiveRestrictions(now time.Time) []model.Restriction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []model.Restriction
	for _, r := range s.restrictions {
		if r.ActiveAt(now) {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (s *TrackStore) UpdateRestriction(id int, apply func(*model.Restriction)) (model.Restriction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.restrictions[id]
	if !ok {
		return model.Restriction{}, fmt.Errorf("%w: id %d", ErrRestrictionNotFound, id)
	}
	if apply != nil {
		apply(&r)
		r.ID = id
		s.restrictions[id] = r
	}
	return r, nil
}

func (s *TrackStore) DeleteRestriction(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.restrictions[id]; !ok {
		return fmt.Errorf("%w: id %d", ErrRestrictionNotFound, id)
	}
	delete(s.restrictions, id)
	s.updateMetricsLocked()
	return nil
}

//
// ---------- Notifications ----------
//

func (s *TrackStore) CreateNotification(n model.Notification) (model.Notification, error) {
	if n.Type == "" {
		return model.Notification{}, fmt.Errorf("%w: empty notification type", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == 0 {
		n.ID = s.nextNotificationID
	}
	if n.ID >= s.nextNotificationID {
		s.nextNotificationID = n.ID + 1
	}
	if n.Status == "" {
		n.Status = model.NotificationPending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications[n.ID] = cloneNotification(n)
	s.updateMetricsLocked()
	return n, nil
}

func (s *TrackStore) GetNotification(id int) (model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return model.Notification{}, fmt.Errorf("%w: id %d", ErrNotificationNotFound, id)
	}
	return cloneNotification(n), nil
}

func (s *TrackStore) ListNotifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]model.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		res = append(res, cloneNotification(n))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// PendingNotifications returns all notifications still in the pending state.
func (s *TrackStore) PendingNotifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []model.Notification
	for _, n := range s.notifications {
		if n.Status == model.NotificationPending {
			res = append(res, cloneNotification(n))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (s *TrackStore) UpdateNotification(id int, apply func(*model.Notification)) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return model.Notification{}, fmt.Errorf("%w: id %d", ErrNotificationNotFound, id)
	}
	if apply != nil {
		updated := cloneNotification(n)
		apply(&updated)
		updated.ID = id
		s.notifications[id] = cloneNotification(updated)
		s.updateMetricsLocked()
		return updated, nil
	}
	return cloneNotification(n), nil
}

func (s *TrackStore) DeleteNotification(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[id]; !ok {
		return fmt.Errorf("%w: id %d", ErrNotificationNotFound, id)
	}
	delete(s.notifications, id)
	s.updateMetricsLocked()
	return nil
}

//
// ---------- Data sources ----------
//

func (s *TrackStore) CreateDataSource(d model.DataSource) (model.DataSource, error) {
	if d.Name == "" {
		return model.DataSource{}, fmt.Errorf("%w: empty source name", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.nextSourceID
	}
	if d.ID >= s.nextSourceID {
		s.nextSourceID = d.ID + 1
	}
	if d.Status == "" {
		d.Status = model.SourceOffline
	}
	s.sources[d.ID] = d
	s.updateMetricsLocked()
	return d, nil
}

func (s *TrackStore) GetDataSource(id int) (model.DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.sources[id]
	if !ok {
		return model.DataSource{}, fmt.Errorf("%w: id %d", ErrDataSourceNotFound, id)
	}
	return d, nil
}

func (s *TrackStore) ListDataSources() []model.DataSource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]model.DataSource, 0, len(s.sources))
	for _, d := range s.sources {
		res = append(res, d)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// OnlineSources returns the names of sources whose status currently allows
// them to corroborate aircraft reports.
func (s *TrackStore) OnlineSources() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	online := make(map[string]bool)
	for _, d := range s.sources {
		if d.Status == model.SourceOnline {
			online[d.Name] = true
		}
	}
	return online
}

func (s *TrackStore) UpdateDataSource(id int, apply func(*model.DataSource)) (model.DataSource, error) {
	s.mu.Lock()
	d, ok := s.sources[id]
	if !ok {
		s.mu.Unlock()
		return model.DataSource{}, fmt.Errorf("%w: id %d", ErrDataSourceNotFound, id)
	}
	if apply != nil {
		apply(&d)
		d.ID = id
	}
	d.LastUpdated = time.Now().UTC()
	s.sources[id] = d
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	s.notify(subs, Event{Type: EventDataSourceUpdated, DataSource: d})
	return d, nil
}

func (s *TrackStore) DeleteDataSource(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("%w: id %d", ErrDataSourceNotFound, id)
	}
	delete(s.sources, id)
	s.updateMetricsLocked()
	return nil
}

//
// ---------- internal ----------
//

func (s *TrackStore) snapshotSubsLocked() []func(Event) {
	return append([]func(Event){}, s.subs...)
}

// notify runs subscriber callbacks outside the lock to avoid deadlocks.
func (s *TrackStore) notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}

func (s *TrackStore) updateMetricsLocked() {
	if s.metrics == nil {
		return
	}
	pending := 0
	for _, n := range s.notifications {
		if n.Status == model.NotificationPending {
			pending++
		}
	}
	s.metrics.SetTrackCounts(len(s.aircraft), len(s.restrictions), pending, len(s.sources))
}

func cloneAircraft(a model.Aircraft) model.Aircraft {
	c := a
	if a.Latitude != nil {
		lat := *a.Latitude
		c.Latitude = &lat
	}
	if a.Longitude != nil {
		lon := *a.Longitude
		c.Longitude = &lon
	}
	if a.VerifiedSources != nil {
		c.VerifiedSources = append([]string{}, a.VerifiedSources...)
	}
	return c
}

func cloneNotification(n model.Notification) model.Notification {
	c := n
	if n.AircraftIDs != nil {
		c.AircraftIDs = append([]int{}, n.AircraftIDs...)
	}
	if n.ResolvedAt != nil {
		t := *n.ResolvedAt
		c.ResolvedAt = &t
	}
	return c
}
