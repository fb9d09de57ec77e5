package core

import "github.com/signalsfoundry/skywatch/model"

// Severity is a collision-risk tier derived from distance and altitude
// thresholds. The bands are nested supersets evaluated high first, so a
// pair emits at most one finding.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// CollisionFinding is one pairwise collision-risk result. AircraftIDs
// holds the pair in snapshot order; callers must not rely on the order of
// findings across a pass.
type CollisionFinding struct {
	AircraftIDs     [2]int   `json:"aircraftIds"`
	TimeToCollision float64  `json:"timeToCollision"` // seconds
	Severity        Severity `json:"severity"`
}

// Severity thresholds: horizontal separation in nautical miles and
// vertical separation in feet.
const (
	highDistance   = 10.0
	highAltDiff    = 1000.0
	mediumDistance = 20.0
	mediumAltDiff  = 2000.0
	lowDistance    = 30.0
	lowAltDiff     = 3000.0
)

// DetectCollisions runs a stateless O(n²) pass over every unordered pair
// in the snapshot with both positions present. It is a pure function of
// the snapshot: re-running on unchanged input yields the same finding set.
func DetectCollisions(snapshot []model.Aircraft) []CollisionFinding {
	var findings []CollisionFinding

	for i := 0; i < len(snapshot); i++ {
		a := &snapshot[i]
		latA, lonA, ok := a.Position()
		if !ok {
			continue
		}
		for j := i + 1; j < len(snapshot); j++ {
			b := &snapshot[j]
			latB, lonB, ok := b.Position()
			if !ok {
				continue
			}

			distance := Haversine(latA, lonA, latB, lonB)
			altDiff := a.Altitude - b.Altitude
			if altDiff < 0 {
				altDiff = -altDiff
			}

			severity, ok := classifySeverity(distance, altDiff)
			if !ok {
				continue
			}

			findings = append(findings, CollisionFinding{
				AircraftIDs:     [2]int{a.ID, b.ID},
				TimeToCollision: timeToCollision(a, b, distance),
				Severity:        severity,
			})
		}
	}
	return findings
}

// classifySeverity checks the nested bands in fixed priority order;
// the first match wins.
func classifySeverity(distance, altDiff float64) (Severity, bool) {
	switch {
	case distance < highDistance && altDiff < highAltDiff:
		return SeverityHigh, true
	case distance < mediumDistance && altDiff < mediumAltDiff:
		return SeverityMedium, true
	case distance < lowDistance && altDiff < lowAltDiff:
		return SeverityLow, true
	default:
		return "", false
	}
}

// timeToCollision estimates seconds until the pair could merge, assuming
// both hold present course and speed. ClosingSpeed floors at 1 knot so the
// division is always defined.
func timeToCollision(a, b *model.Aircraft, distance float64) float64 {
	return distance / ClosingSpeed(a, b) * 3600
}
