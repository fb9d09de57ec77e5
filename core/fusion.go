package core

import (
	"sort"

	"github.com/signalsfoundry/skywatch/model"
)

// Corroborator decides whether a single data source confirms a candidate
// aircraft state. Implementations must be pure: the fusion engine may call
// them from multiple goroutines.
type Corroborator func(a model.Aircraft) bool

// FusionSource is one entry in the fusion engine's priority chain.
type FusionSource struct {
	Name    string
	Weight  float64
	Confirm Corroborator
}

// FusionResult is the verification outcome for a single candidate state.
// Sources lists the confirming sources in chain priority order.
type FusionResult struct {
	Status     model.VerificationStatus `json:"status"`
	Sources    []string                 `json:"sources"`
	Confidence float64                  `json:"confidence"`
}

// FusionEngine converts a candidate aircraft state plus the set of
// currently-reachable data sources into a verification status and a
// confidence score. It holds no mutable state and is safe for concurrent
// use. Persisting the result onto the aircraft record is the caller's job.
type FusionEngine struct {
	chain []FusionSource
}

// NewFusionEngine builds an engine from a priority-ordered source chain.
// Chains with non-decreasing weights are rejected at construction by
// sorting: weights are forced monotonically decreasing in chain order.
func NewFusionEngine(chain ...FusionSource) *FusionEngine {
	sources := make([]FusionSource, len(chain))
	copy(sources, chain)
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Weight > sources[j].Weight
	})
	for i := range sources {
		if sources[i].Confirm == nil {
			sources[i].Confirm = PlausibleState
		}
	}
	return &FusionEngine{chain: sources}
}

// DefaultSourceChain is the stock priority chain: ADS-B as the primary
// source, radar secondary, multilateration tertiary. Weights sum to 1.0.
func DefaultSourceChain() []FusionSource {
	return []FusionSource{
		{Name: "adsb", Weight: 0.5, Confirm: PlausibleState},
		{Name: "radar", Weight: 0.3, Confirm: PlausibleState},
		{Name: "mlat", Weight: 0.2, Confirm: PlausibleState},
	}
}

// Verify consults each configured source in priority order. Sources absent
// from online are skipped entirely; an unreachable source is exclusion,
// not an error. Confidence is the sum of the confirming sources' weights,
// capped at 1.0.
func (e *FusionEngine) Verify(candidate model.Aircraft, online map[string]bool) FusionResult {
	var confirmed []string
	confidence := 0.0

	for _, src := range e.chain {
		if !online[src.Name] {
			continue
		}
		if !src.Confirm(candidate) {
			continue
		}
		confirmed = append(confirmed, src.Name)
		confidence += src.Weight
	}

	if confidence > 1.0 {
		confidence = 1.0
	}

	return FusionResult{
		Status:     model.VerificationForCount(len(confirmed)),
		Sources:    confirmed,
		Confidence: confidence,
	}
}

// PlausibleState is the stock corroborator: it confirms a candidate whose
// kinematics fall inside coarse physical envelopes. Position is required;
// a source cannot corroborate a target it cannot place.
func PlausibleState(a model.Aircraft) bool {
	lat, lon, ok := a.Position()
	if !ok {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	if a.Altitude < -1500 || a.Altitude > 60000 {
		return false
	}
	if a.Speed < 0 || a.Speed > 1200 {
		return false
	}
	if a.Heading < 0 || a.Heading >= 360 {
		return false
	}
	return true
}
