package main

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/skywatch/core"
	"github.com/signalsfoundry/skywatch/internal/alerting"
	"github.com/signalsfoundry/skywatch/internal/logging"
)

// detectionInterval is how often the server-owned loop runs both
// detection passes. Overridable in tests.
var detectionInterval = 5 * time.Second

// detectionRunner is the slice of the notification manager the loop
// needs.
type detectionRunner interface {
	RunCollisionPass(ctx context.Context) ([]core.CollisionFinding, error)
	RunAirspacePass(ctx context.Context) ([]core.AirspaceFinding, error)
}

// runDetectionLoop drives the collision and airspace passes on a fixed
// interval until the context is cancelled. A pass already in flight
// (for example from an external trigger request) is skipped, not
// queued.
func runDetectionLoop(ctx context.Context, runner detectionRunner, log logging.Logger) {
	ticker := time.NewTicker(detectionInterval)
	defer ticker.Stop()

	log.Info(ctx, "starting detection loop", logging.Duration("interval", detectionInterval))

	for {
		select {
		case <-ctx.Done():
			log.Info(context.Background(), "detection loop stopped")
			return
		case <-ticker.C:
			if _, err := runner.RunCollisionPass(ctx); err != nil && !errors.Is(err, alerting.ErrPassInFlight) {
				log.Warn(ctx, "collision pass failed", logging.Err(err))
			}
			if _, err := runner.RunAirspacePass(ctx); err != nil && !errors.Is(err, alerting.ErrPassInFlight) {
				log.Warn(ctx, "airspace pass failed", logging.Err(err))
			}
		}
	}
}
