package model

import "time"

// Vertex is a single lon/lat polygon vertex in decimal degrees.
type Vertex struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Restriction describes a volume of restricted airspace. The lateral
// boundary is either a polygon ring (Polygon has at least three vertices)
// or a circle (Center set, RadiusNM > 0); the altitude band [MinAltitude,
// MaxAltitude] is inclusive on both ends.
type Restriction struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // e.g. "TFR", "restricted", "prohibited"

	Polygon  []Vertex `json:"polygon,omitempty"`
	Center   *Vertex  `json:"center,omitempty"`
	RadiusNM float64  `json:"radiusNm,omitempty"` // nautical miles

	MinAltitude float64 `json:"minAltitude"` // feet
	MaxAltitude float64 `json:"maxAltitude"` // feet

	Active    bool       `json:"active"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// HasBoundary reports whether the restriction carries a usable lateral
// boundary of either kind.
func (r *Restriction) HasBoundary() bool {
	if len(r.Polygon) >= 3 {
		return true
	}
	return r.Center != nil && r.RadiusNM > 0
}

// ActiveAt reports whether the restriction is flagged active and its
// optional time window contains now.
func (r *Restriction) ActiveAt(now time.Time) bool {
	if !r.Active {
		return false
	}
	if r.StartTime != nil && now.Before(*r.StartTime) {
		return false
	}
	if r.EndTime != nil && now.After(*r.EndTime) {
		return false
	}
	return true
}
