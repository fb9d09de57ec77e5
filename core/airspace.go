package core

import "github.com/signalsfoundry/skywatch/model"

// AirspaceFinding is one containment violation: the aircraft is inside the
// restriction's lateral boundary and altitude band.
type AirspaceFinding struct {
	AircraftID      int    `json:"aircraftId"`
	RestrictionID   int    `json:"restrictionId"`
	RestrictionType string `json:"restrictionType"`
}

// DetectViolations runs a stateless O(n·m) pass of the aircraft snapshot
// against the restriction set. Only restrictions flagged active are
// evaluated; a restriction without a usable boundary is skipped per-item
// so one bad record never aborts the pass. Pure function of its inputs.
func DetectViolations(snapshot []model.Aircraft, restrictions []model.Restriction) []AirspaceFinding {
	var findings []AirspaceFinding

	for ri := range restrictions {
		r := &restrictions[ri]
		if !r.Active || !r.HasBoundary() {
			continue
		}
		for ai := range snapshot {
			a := &snapshot[ai]
			lat, lon, ok := a.Position()
			if !ok {
				continue
			}
			if a.Altitude < r.MinAltitude || a.Altitude > r.MaxAltitude {
				continue
			}
			if !lateralContains(r, lat, lon) {
				continue
			}
			findings = append(findings, AirspaceFinding{
				AircraftID:      a.ID,
				RestrictionID:   r.ID,
				RestrictionType: r.Type,
			})
		}
	}
	return findings
}

// lateralContains checks the restriction's boundary, preferring the
// polygon ring when both forms are somehow present.
func lateralContains(r *model.Restriction, lat, lon float64) bool {
	if len(r.Polygon) >= 3 {
		return PointInRing(lat, lon, r.Polygon)
	}
	if r.Center != nil && r.RadiusNM > 0 {
		return Haversine(lat, lon, r.Center.Lat, r.Center.Lon) <= r.RadiusNM
	}
	return false
}
