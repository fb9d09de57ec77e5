// Command simulator feeds a running surveillance server with synthetic
// traffic: it creates a handful of aircraft over the API and advances
// their positions every tick, which exercises fusion, detection, and
// the realtime channel end to end.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"time"
)

// track is one simulated flight. Positions advance along the heading at
// the configured speed each tick.
type track struct {
	id       int
	callsign string
	lat      float64
	lon      float64
	altitude float64
	heading  float64
	speed    float64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the surveillance server")
	tick := flag.Duration("tick", 1*time.Second, "position update interval")
	duration := flag.Duration("duration", 60*time.Second, "total run duration (0 = until interrupted)")
	count := flag.Int("count", 4, "number of simulated aircraft")
	converge := flag.Bool("converge", true, "steer the first two aircraft toward each other to trigger collision alerts")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	tracks := spawn(*count, *converge)
	for i := range tracks {
		id, err := createAircraft(client, *baseURL, &tracks[i])
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", tracks[i].callsign, err)
			os.Exit(1)
		}
		tracks[i].id = id
		fmt.Printf("created %s as aircraft %d\n", tracks[i].callsign, id)
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	ticker := time.NewTicker(*tick)
	defer ticker.Stop()

	fmt.Printf("simulating %d aircraft, tick=%s\n", len(tracks), *tick)
	for {
		select {
		case <-stopCtx.Done():
			fmt.Println("simulation interrupted")
			return
		case <-deadline:
			fmt.Println("simulation complete")
			return
		case <-ticker.C:
			for i := range tracks {
				tracks[i].advance(tick.Seconds())
				if err := updateAircraft(client, *baseURL, &tracks[i]); err != nil {
					fmt.Fprintf(os.Stderr, "update %s: %v\n", tracks[i].callsign, err)
					continue
				}
				fmt.Printf("[%s] %s (%.4f, %.4f) alt=%.0f hdg=%.0f\n",
					time.Now().Format(time.RFC3339), tracks[i].callsign,
					tracks[i].lat, tracks[i].lon, tracks[i].altitude, tracks[i].heading)
			}
		}
	}
}

// spawn lays out the initial tracks. With converge set, the first two
// aircraft start 20nm apart at the same altitude flying head-on.
func spawn(count int, converge bool) []track {
	tracks := make([]track, 0, count)
	for i := 0; i < count; i++ {
		tracks = append(tracks, track{
			callsign: fmt.Sprintf("SIM%03d", i+1),
			lat:      40.0 + 0.5*float64(i),
			lon:      -74.0 - 0.5*float64(i),
			altitude: 20000 + 2000*float64(i),
			heading:  float64((i * 90) % 360),
			speed:    420,
		})
	}
	if converge && len(tracks) >= 2 {
		// 20nm ≈ 0.333° of latitude.
		tracks[0].lat, tracks[0].lon, tracks[0].heading = 40.0, -74.0, 0
		tracks[1].lat, tracks[1].lon, tracks[1].heading = 40.333, -74.0, 180
		tracks[1].altitude = tracks[0].altitude
	}
	return tracks
}

// advance dead-reckons the track along its heading. One degree of
// latitude is 60nm; longitude shrinks with cos(lat).
func (t *track) advance(seconds float64) {
	distNM := t.speed * seconds / 3600
	rad := t.heading * math.Pi / 180
	t.lat += distNM * math.Cos(rad) / 60
	cosLat := math.Cos(t.lat * math.Pi / 180)
	if cosLat != 0 {
		t.lon += distNM * math.Sin(rad) / (60 * cosLat)
	}
}

type aircraftBody struct {
	Callsign  string  `json:"callsign,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Heading   float64 `json:"heading"`
	Speed     float64 `json:"speed"`
}

func createAircraft(client *http.Client, baseURL string, t *track) (int, error) {
	body := aircraftBody{
		Callsign:  t.callsign,
		Latitude:  t.lat,
		Longitude: t.lon,
		Altitude:  t.altitude,
		Heading:   t.heading,
		Speed:     t.speed,
	}
	resp, err := post(client, baseURL+"/aircraft", body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var created struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

func updateAircraft(client *http.Client, baseURL string, t *track) error {
	body := aircraftBody{
		Latitude:  t.lat,
		Longitude: t.lon,
		Altitude:  t.altitude,
		Heading:   t.heading,
		Speed:     t.speed,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/aircraft/%d", baseURL, t.id), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func post(client *http.Client, url string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return client.Post(url, "application/json", bytes.NewReader(data))
}
