package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/skywatch/model"
)

func TestHaversineZeroDistance(t *testing.T) {
	if d := Haversine(40.0, -74.0, 40.0, -74.0); d != 0 {
		t.Fatalf("Haversine same point = %v, want 0", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// One degree of latitude is ~60nm under the sphere approximation.
	d := Haversine(0, 0, 1, 0)
	if math.Abs(d-60.04) > 0.1 {
		t.Fatalf("Haversine 1 degree latitude = %v, want ~60nm", d)
	}
}

func TestHaversineSymmetry(t *testing.T) {
	a := Haversine(40.7, -74.0, 51.5, -0.1)
	b := Haversine(51.5, -0.1, 40.7, -74.0)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("Haversine not symmetric: %v vs %v", a, b)
	}
}

func TestVelocityOfCardinalHeadings(t *testing.T) {
	cases := []struct {
		heading     float64
		east, north float64
	}{
		{0, 0, 100},
		{90, 100, 0},
		{180, 0, -100},
		{270, -100, 0},
	}
	for _, tc := range cases {
		v := VelocityOf(&model.Aircraft{Speed: 100, Heading: tc.heading})
		if math.Abs(v.East-tc.east) > 1e-9 || math.Abs(v.North-tc.north) > 1e-9 {
			t.Fatalf("VelocityOf heading %v = %+v, want east=%v north=%v",
				tc.heading, v, tc.east, tc.north)
		}
	}
}

func TestClosingSpeedHeadOn(t *testing.T) {
	// Two aircraft flying straight at each other close at the sum of
	// their speeds.
	a := &model.Aircraft{Speed: 400, Heading: 0}
	b := &model.Aircraft{Speed: 400, Heading: 180}
	got := ClosingSpeed(a, b)
	if math.Abs(got-800) > 1e-6 {
		t.Fatalf("ClosingSpeed head-on = %v, want 800", got)
	}
}

func TestClosingSpeedFloor(t *testing.T) {
	// Same velocity is zero closure; the floor keeps downstream
	// time-to-collision finite.
	a := &model.Aircraft{Speed: 400, Heading: 90}
	b := &model.Aircraft{Speed: 400, Heading: 90}
	if got := ClosingSpeed(a, b); got != 1 {
		t.Fatalf("ClosingSpeed parallel = %v, want floor of 1", got)
	}
}

func TestPointInRingSquare(t *testing.T) {
	ring := []model.Vertex{
		{Lon: -1, Lat: -1},
		{Lon: 1, Lat: -1},
		{Lon: 1, Lat: 1},
		{Lon: -1, Lat: 1},
	}
	if !PointInRing(0, 0, ring) {
		t.Fatalf("centre should be inside the square")
	}
	if PointInRing(0, 2, ring) {
		t.Fatalf("lon 2 should be outside the square")
	}
	if PointInRing(2, 0, ring) {
		t.Fatalf("lat 2 should be outside the square")
	}
}

func TestPointInRingConcave(t *testing.T) {
	// A notched polygon: the notch interior counts as outside under
	// even-odd crossing.
	ring := []model.Vertex{
		{Lon: 0, Lat: 0},
		{Lon: 4, Lat: 0},
		{Lon: 4, Lat: 4},
		{Lon: 2, Lat: 2},
		{Lon: 0, Lat: 4},
	}
	if !PointInRing(1, 1, ring) {
		t.Fatalf("(1,1) should be inside")
	}
	if PointInRing(3.5, 2, ring) {
		t.Fatalf("lat 3.5 lon 2 sits in the notch and should be outside")
	}
}

func TestPointInRingDegenerate(t *testing.T) {
	if PointInRing(0, 0, nil) {
		t.Fatalf("empty ring contains nothing")
	}
	if PointInRing(0, 0, []model.Vertex{{Lon: 1, Lat: 1}, {Lon: 2, Lat: 2}}) {
		t.Fatalf("two-vertex ring contains nothing")
	}
}
