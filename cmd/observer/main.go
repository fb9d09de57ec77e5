// Command observer connects to a running surveillance server over the
// realtime channel and prints the live picture: aircraft movements,
// alerts, notifications, and source status changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/skywatch/internal/agent"
	"github.com/signalsfoundry/skywatch/internal/logging"
	"github.com/signalsfoundry/skywatch/internal/wire"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "websocket URL of the surveillance server")
	pingInterval := flag.Duration("ping-interval", 15*time.Second, "liveness ping interval")
	flag.Parse()

	log := logging.NewFromEnv()
	a := agent.New(*url, agent.NewWebsocketDialer(), log)

	a.OnStateChange(func(s agent.State) {
		fmt.Printf("-- connection %s\n", s)
		if s == agent.StateFailed {
			fmt.Println("-- giving up, server unreachable")
			os.Exit(1)
		}
	})

	a.On(wire.TypeSingleAircraftUpdate, func(m wire.Message) {
		u, ok := m.(wire.SingleAircraftUpdate)
		if !ok {
			return
		}
		ac := u.Aircraft
		if lat, lon, ok := position(ac.Latitude, ac.Longitude); ok {
			fmt.Printf("%-10s (%.4f, %.4f) alt=%6.0fft spd=%4.0fkn hdg=%3.0f [%s]\n",
				ac.Callsign, lat, lon, ac.Altitude, ac.Speed, ac.Heading, ac.VerificationStatus)
		} else {
			fmt.Printf("%-10s (no position) [%s]\n", ac.Callsign, ac.VerificationStatus)
		}
	})

	a.On(wire.TypeAircraftUpdate, func(m wire.Message) {
		if u, ok := m.(wire.AircraftUpdate); ok {
			fmt.Printf("-- full picture: %d aircraft\n", len(u.Aircraft))
		}
	})

	a.On(wire.TypeCollisionAlert, func(m wire.Message) {
		if alert, ok := m.(wire.CollisionAlert); ok {
			fmt.Printf("!! collision risk %s: aircraft %d and %d, %.0fs to closest approach\n",
				alert.Severity, alert.AircraftIDs[0], alert.AircraftIDs[1], alert.TimeToCollision)
		}
	})

	a.On(wire.TypeAirspaceAlert, func(m wire.Message) {
		if alert, ok := m.(wire.AirspaceAlert); ok {
			fmt.Printf("!! airspace violation: aircraft %d inside %s restriction %d\n",
				alert.AircraftID, alert.RestrictionType, alert.RestrictionID)
		}
	})

	a.On(wire.TypeNotification, func(m wire.Message) {
		if ev, ok := m.(wire.NotificationEvent); ok {
			n := ev.Notification
			fmt.Printf(">> [%s/%s] %s: %s\n", n.Type, n.Priority, n.Status, n.Message)
		}
	})

	a.On(wire.TypeDataSourceUpdate, func(m wire.Message) {
		if u, ok := m.(wire.DataSourceUpdate); ok {
			for _, src := range u.DataSources {
				fmt.Printf("-- source %s: %s\n", src.Name, src.Status)
			}
		}
	})

	a.Connect()
	defer a.Disconnect()

	go func() {
		ticker := time.NewTicker(*pingInterval)
		defer ticker.Stop()
		for range ticker.C {
			_ = a.Send(wire.Ping{})
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-stopCtx.Done()
	fmt.Println("-- observer stopped")
}

func position(lat, lon *float64) (float64, float64, bool) {
	if lat == nil || lon == nil {
		return 0, 0, false
	}
	return *lat, *lon, true
}
