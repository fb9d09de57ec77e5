// Package httpapi exposes the surveillance core's trigger surface: the
// detection endpoints external pollers hit, the notification and aircraft
// write paths, and the websocket upgrade into the distribution hub.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/signalsfoundry/skywatch/core"
	"github.com/signalsfoundry/skywatch/internal/alerting"
	"github.com/signalsfoundry/skywatch/internal/hub"
	"github.com/signalsfoundry/skywatch/internal/logging"
	"github.com/signalsfoundry/skywatch/internal/observability"
	"github.com/signalsfoundry/skywatch/kb"
	"github.com/signalsfoundry/skywatch/model"
)

// Server wires the REST trigger surface to the store, fusion engine,
// notification manager, and distribution hub.
type Server struct {
	store   *kb.TrackStore
	fusion  *core.FusionEngine
	manager *alerting.Manager
	hub     *hub.Hub
	log     logging.Logger

	collector *observability.Collector
	upgrader  websocket.Upgrader
}

// New constructs the API server. The collector is optional.
func New(store *kb.TrackStore, fusion *core.FusionEngine, manager *alerting.Manager, h *hub.Hub, log logging.Logger, collector *observability.Collector) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{
		store:     store,
		fusion:    fusion,
		manager:   manager,
		hub:       h,
		log:       log,
		collector: collector,
		upgrader: websocket.Upgrader{
			// The UI and observer clients are served from elsewhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the fully-routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "POST /ml/detect-collisions", "detect_collisions", s.handleDetectCollisions)
	s.route(mux, "POST /ml/detect-airspace-violations", "detect_airspace", s.handleDetectAirspace)

	s.route(mux, "GET /aircraft", "aircraft", s.handleListAircraft)
	s.route(mux, "POST /aircraft", "aircraft", s.handleCreateAircraft)
	s.route(mux, "GET /aircraft/{id}", "aircraft_by_id", s.handleGetAircraft)
	s.route(mux, "PUT /aircraft/{id}", "aircraft_by_id", s.handleUpdateAircraft)
	s.route(mux, "DELETE /aircraft/{id}", "aircraft_by_id", s.handleDeleteAircraft)
	s.route(mux, "POST /aircraft/{id}/assistance", "assistance", s.handleAssistance)
	s.route(mux, "POST /aircraft/{id}/handoff", "handoff", s.handleHandoff)

	s.route(mux, "GET /notifications", "notifications", s.handleListNotifications)
	s.route(mux, "PATCH /notifications/{id}", "notification_by_id", s.handleResolveNotification)

	s.route(mux, "GET /restrictions", "restrictions", s.handleListRestrictions)
	s.route(mux, "POST /restrictions", "restrictions", s.handleCreateRestriction)

	s.route(mux, "GET /datasources", "datasources", s.handleListDataSources)
	s.route(mux, "PUT /datasources/{id}", "datasource_by_id", s.handleUpdateDataSource)

	mux.HandleFunc("GET /ws", s.handleWebsocket)

	return mux
}

// route registers a handler behind the request-logging and metrics
// middleware.
func (s *Server) route(mux *http.ServeMux, pattern, name string, handler http.HandlerFunc) {
	wrapped := s.withRequestLogger(handler)
	if s.collector != nil {
		mux.Handle(pattern, s.collector.Middleware(name, wrapped))
		return
	}
	mux.Handle(pattern, wrapped)
}

// withRequestLogger ensures a request_id is present on the context,
// sourcing it from the X-Request-Id header if provided, and attaches a
// per-request logger.
func (s *Server) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := r.Header.Get("X-Request-Id"); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, s.log.With(logging.String("path", r.URL.Path)))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

//
// ---------- detection triggers ----------
//

func (s *Server) handleDetectCollisions(w http.ResponseWriter, r *http.Request) {
	findings, err := s.manager.RunCollisionPass(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if findings == nil {
		findings = []core.CollisionFinding{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"findings": findings})
}

func (s *Server) handleDetectAirspace(w http.ResponseWriter, r *http.Request) {
	findings, err := s.manager.RunAirspacePass(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if findings == nil {
		findings = []core.AirspaceFinding{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"findings": findings})
}

//
// ---------- aircraft ----------
//

// aircraftPayload is the partial write shape: nil fields are untouched.
type aircraftPayload struct {
	Callsign    *string  `json:"callsign"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Altitude    *float64 `json:"altitude"`
	Heading     *float64 `json:"heading"`
	Speed       *float64 `json:"speed"`
	Origin      *string  `json:"origin"`
	Destination *string  `json:"destination"`
	Squawk      *string  `json:"squawk"`
	SectorID    *int     `json:"sectorId"`
}

// kinematic reports whether the payload touches any field the fusion
// engine verifies against. Administrative changes never re-run fusion.
func (p *aircraftPayload) kinematic() bool {
	return p.Latitude != nil || p.Longitude != nil || p.Altitude != nil ||
		p.Heading != nil || p.Speed != nil
}

func (p *aircraftPayload) applyTo(a *model.Aircraft) {
	if p.Latitude != nil {
		a.Latitude = p.Latitude
	}
	if p.Longitude != nil {
		a.Longitude = p.Longitude
	}
	if p.Altitude != nil {
		a.Altitude = *p.Altitude
	}
	if p.Heading != nil {
		a.Heading = *p.Heading
	}
	if p.Speed != nil {
		a.Speed = *p.Speed
	}
	if p.Origin != nil {
		a.Origin = *p.Origin
	}
	if p.Destination != nil {
		a.Destination = *p.Destination
	}
	if p.Squawk != nil {
		a.Squawk = *p.Squawk
	}
	if p.SectorID != nil {
		a.SectorID = *p.SectorID
	}
}

func (s *Server) handleListAircraft(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.ListAircraft())
}

func (s *Server) handleGetAircraft(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	a, err := s.store.GetAircraft(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleCreateAircraft(w http.ResponseWriter, r *http.Request) {
	var p aircraftPayload
	if !s.readJSON(w, r, &p) {
		return
	}

	var a model.Aircraft
	if p.Callsign != nil {
		a.Callsign = *p.Callsign
	}
	p.applyTo(&a)
	s.verify(&a)

	created, err := s.store.CreateAircraft(a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateAircraft(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var p aircraftPayload
	if !s.readJSON(w, r, &p) {
		return
	}

	updated, err := s.store.UpdateAircraft(id, func(a *model.Aircraft) {
		p.applyTo(a)
		if p.kinematic() {
			s.verify(a)
		}
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAircraft(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteAircraft(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// verify runs the fusion engine against the currently-online sources and
// stamps the result onto the record.
func (s *Server) verify(a *model.Aircraft) {
	if s.fusion == nil {
		return
	}
	res := s.fusion.Verify(*a, s.store.OnlineSources())
	a.VerificationStatus = res.Status
	a.VerifiedSources = res.Sources
}

type assistancePayload struct {
	NeedsAssistance *bool `json:"needsAssistance"`
}

func (s *Server) handleAssistance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	// Absent body or field means toggle.
	var p assistancePayload
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&p)
	}

	var flagged bool
	updated, err := s.store.UpdateAircraft(id, func(a *model.Aircraft) {
		was := a.NeedsAssistance
		if p.NeedsAssistance != nil {
			a.NeedsAssistance = *p.NeedsAssistance
		} else {
			a.NeedsAssistance = !a.NeedsAssistance
		}
		flagged = !was && a.NeedsAssistance
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if flagged {
		if _, err := s.manager.OnAssistanceFlagged(updated); err != nil {
			s.log.Warn(r.Context(), "assistance notification failed",
				logging.Int("aircraft", id), logging.Err(err))
		}
	}
	s.writeJSON(w, http.StatusOK, updated)
}

type handoffPayload struct {
	SectorID int `json:"sectorId"`
}

func (s *Server) handleHandoff(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var p handoffPayload
	if !s.readJSON(w, r, &p) {
		return
	}

	updated, err := s.store.UpdateAircraft(id, func(a *model.Aircraft) {
		a.SectorID = p.SectorID
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.manager.OnHandoff(updated, p.SectorID); err != nil {
		s.log.Warn(r.Context(), "handoff notification failed",
			logging.Int("aircraft", id), logging.Err(err))
	}
	s.writeJSON(w, http.StatusOK, updated)
}

//
// ---------- notifications ----------
//

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("status") == string(model.NotificationPending) {
		s.writeJSON(w, http.StatusOK, s.store.PendingNotifications())
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.ListNotifications())
}

func (s *Server) handleResolveNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	resolved, err := s.manager.Resolve(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resolved)
}

//
// ---------- restrictions ----------
//

func (s *Server) handleListRestrictions(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("active") == "true" {
		s.writeJSON(w, http.StatusOK, s.store.ActiveRestrictions(time.Now()))
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.ListRestrictions())
}

func (s *Server) handleCreateRestriction(w http.ResponseWriter, r *http.Request) {
	var rec model.Restriction
	if !s.readJSON(w, r, &rec) {
		return
	}
	created, err := s.store.CreateRestriction(rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

//
// ---------- data sources ----------
//

func (s *Server) handleListDataSources(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.ListDataSources())
}

type dataSourcePayload struct {
	Status *model.SourceStatus `json:"status"`
}

func (s *Server) handleUpdateDataSource(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var p dataSourcePayload
	if !s.readJSON(w, r, &p) {
		return
	}
	updated, err := s.store.UpdateDataSource(id, func(d *model.DataSource) {
		if p.Status != nil {
			d.Status = *p.Status
		}
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

//
// ---------- realtime channel ----------
//

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}

	session := hub.NewSession(hub.NewWebsocketConn(ws))
	s.hub.Register(session)
	go s.hub.ServeSession(context.Background(), session)
}

//
// ---------- helpers ----------
//

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn(context.Background(), "response encode failed", logging.Err(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed", logging.Err(err))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
