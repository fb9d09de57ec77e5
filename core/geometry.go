package core

import (
	"math"

	"github.com/signalsfoundry/skywatch/model"
)

// EarthRadius is the mean Earth radius (3958.8) used for all great-circle
// calculations in the surveillance layer. Every distance threshold in this
// package is calibrated against this constant.
const EarthRadius = 3958.8

// Haversine returns the great-circle distance between two lat/lon points
// in decimal degrees, in the units of EarthRadius.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := degToRad(lat1)
	phi2 := degToRad(lat2)
	dPhi := degToRad(lat2 - lat1)
	dLambda := degToRad(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// Velocity is a ground-speed vector in knots, decomposed into east/north
// components from ground speed and heading (degrees clockwise from north).
type Velocity struct {
	East  float64
	North float64
}

// VelocityOf decomposes an aircraft's ground speed along its heading.
func VelocityOf(a *model.Aircraft) Velocity {
	theta := degToRad(a.Heading)
	return Velocity{
		East:  a.Speed * math.Sin(theta),
		North: a.Speed * math.Cos(theta),
	}
}

// ClosingSpeed returns the magnitude of the velocity difference between
// two aircraft in knots, floored at 1 knot so callers can divide by it.
func ClosingSpeed(a, b *model.Aircraft) float64 {
	va := VelocityOf(a)
	vb := VelocityOf(b)
	de := va.East - vb.East
	dn := va.North - vb.North
	speed := math.Sqrt(de*de + dn*dn)
	if speed < 1 {
		return 1
	}
	return speed
}

// PointInRing reports whether the lat/lon point lies inside the polygon
// ring using the even-odd ray-casting rule. The ring is an ordered list
// of lon/lat vertices; it is treated as closed even when the first vertex
// is not repeated at the end.
func PointInRing(lat, lon float64, ring []model.Vertex) bool {
	if len(ring) < 3 {
		return false
	}

	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		vi := ring[i]
		vj := ring[j]
		if (vi.Lat > lat) != (vj.Lat > lat) {
			x := (vj.Lon-vi.Lon)*(lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lon
			if lon < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}
