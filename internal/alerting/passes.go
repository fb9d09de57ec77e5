package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/skywatch/core"
	"github.com/signalsfoundry/skywatch/internal/logging"
	"github.com/signalsfoundry/skywatch/internal/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrPassInFlight is returned when a detection pass of the same kind is
// already running; the caller can retry after the current pass finishes.
var ErrPassInFlight = errors.New("detection pass already in flight")

const tracerName = "skywatch/alerting"

// RunCollisionPass snapshots the tracked set, runs the conflict detector,
// broadcasts every finding, and persists notifications for high-severity
// pairs. Only one collision pass runs at a time.
func (m *Manager) RunCollisionPass(ctx context.Context) ([]core.CollisionFinding, error) {
	if !m.collisionGuard.TryLock() {
		m.recordPass("collision", "busy", 0, 0)
		return nil, ErrPassInFlight
	}
	defer m.collisionGuard.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "detect.collisions")
	defer span.End()
	start := time.Now()

	snapshot := m.store.ListAircraft()
	findings := core.DetectCollisions(snapshot)
	span.SetAttributes(
		attribute.Int("aircraft", len(snapshot)),
		attribute.Int("findings", len(findings)),
	)

	for _, f := range findings {
		if m.hub != nil {
			m.hub.Broadcast(wire.CollisionAlert{
				AircraftIDs:     f.AircraftIDs,
				TimeToCollision: f.TimeToCollision,
				Severity:        string(f.Severity),
			})
		}
		if _, err := m.OnCollisionFinding(f); err != nil {
			// One bad record must not abort the pass; keep what we have.
			m.log.Warn(ctx, "collision notification failed",
				logging.Int("aircraft_a", f.AircraftIDs[0]),
				logging.Int("aircraft_b", f.AircraftIDs[1]),
				logging.Err(err),
			)
		}
	}

	m.recordPass("collision", "ok", len(findings), time.Since(start))
	return findings, nil
}

// RunAirspacePass snapshots the tracked set and active restrictions, runs
// the airspace detector, broadcasts every finding, and persists a
// notification per violation. Only one airspace pass runs at a time.
func (m *Manager) RunAirspacePass(ctx context.Context) ([]core.AirspaceFinding, error) {
	if !m.airspaceGuard.TryLock() {
		m.recordPass("airspace", "busy", 0, 0)
		return nil, ErrPassInFlight
	}
	defer m.airspaceGuard.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "detect.airspace")
	defer span.End()
	start := time.Now()

	snapshot := m.store.ListAircraft()
	restrictions := m.store.ActiveRestrictions(m.now())
	findings := core.DetectViolations(snapshot, restrictions)
	span.SetAttributes(
		attribute.Int("aircraft", len(snapshot)),
		attribute.Int("restrictions", len(restrictions)),
		attribute.Int("findings", len(findings)),
	)

	for _, f := range findings {
		if m.hub != nil {
			m.hub.Broadcast(wire.AirspaceAlert{
				AircraftID:      f.AircraftID,
				RestrictionID:   f.RestrictionID,
				RestrictionType: f.RestrictionType,
			})
		}
		if _, err := m.OnAirspaceFinding(f); err != nil {
			m.log.Warn(ctx, "airspace notification failed",
				logging.Int("aircraft", f.AircraftID),
				logging.Int("restriction", f.RestrictionID),
				logging.Err(err),
			)
		}
	}

	m.recordPass("airspace", "ok", len(findings), time.Since(start))
	return findings, nil
}

func (m *Manager) recordPass(kind, outcome string, findings int, elapsed time.Duration) {
	if m.metrics != nil {
		m.metrics.ObserveDetection(kind, outcome, findings, elapsed)
	}
}
