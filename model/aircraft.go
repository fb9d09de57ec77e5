package model

// VerificationStatus describes how many independent data sources have
// corroborated an aircraft's reported state.
type VerificationStatus string

const (
	StatusUnverified        VerificationStatus = "unverified"
	StatusPartiallyVerified VerificationStatus = "partially_verified"
	StatusVerified          VerificationStatus = "verified"
)

// VerificationForCount maps a confirming-source count to a status:
// 0 sources is unverified, exactly 1 is partially verified, 2 or more
// is verified.
func VerificationForCount(n int) VerificationStatus {
	switch {
	case n >= 2:
		return StatusVerified
	case n == 1:
		return StatusPartiallyVerified
	default:
		return StatusUnverified
	}
}

// Aircraft is a tracked aircraft. Latitude/Longitude are pointers because
// a target may be known (by callsign or squawk) before a usable position
// report arrives; (0, 0) is a legitimate position.
type Aircraft struct {
	ID       int    `json:"id"`
	Callsign string `json:"callsign"`

	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  float64  `json:"altitude"` // feet
	Heading   float64  `json:"heading"`  // degrees clockwise from north, 0-359
	Speed     float64  `json:"speed"`    // ground speed, knots

	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`
	Squawk      string `json:"squawk,omitempty"`

	VerificationStatus VerificationStatus `json:"verificationStatus"`
	VerifiedSources    []string           `json:"verifiedSources"`

	NeedsAssistance bool `json:"needsAssistance"`
	SectorID        int  `json:"sectorId,omitempty"`
}

// HasPosition reports whether both coordinates are present.
func (a *Aircraft) HasPosition() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// Position returns the coordinates and whether they are present.
func (a *Aircraft) Position() (lat, lon float64, ok bool) {
	if !a.HasPosition() {
		return 0, 0, false
	}
	return *a.Latitude, *a.Longitude, true
}
