package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/skywatch/core"
	"github.com/signalsfoundry/skywatch/internal/alerting"
	"github.com/signalsfoundry/skywatch/internal/config"
	"github.com/signalsfoundry/skywatch/internal/httpapi"
	"github.com/signalsfoundry/skywatch/internal/hub"
	"github.com/signalsfoundry/skywatch/internal/logging"
	"github.com/signalsfoundry/skywatch/internal/observability"
	"github.com/signalsfoundry/skywatch/internal/wire"
	"github.com/signalsfoundry/skywatch/kb"
	"github.com/signalsfoundry/skywatch/model"
)

func main() {
	configPath := flag.String("config", "configs/server.yaml", "Path to the YAML server configuration")
	httpAddr := flag.String("http-addr", "", "HTTP address the API server listens on (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.String("path", *configPath), logging.Err(err))
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	collector, err := observability.NewCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}

	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	store := kb.NewTrackStore(kb.WithCountsRecorder(collector))
	loadRestrictions(log, store, cfg.RestrictionsPath)
	seedSources(log, store)

	h := hub.New(log, hub.WithMetrics(collector))
	fusion := core.NewFusionEngine(fusionChain(cfg.Sources)...)
	manager := alerting.NewManager(store, h, log, alerting.WithDetectionRecorder(collector))

	// Realtime fan-out: every store mutation becomes a hub broadcast so
	// connected clients track the live picture without polling.
	unsubscribe := store.Subscribe(func(ev kb.Event) {
		switch ev.Type {
		case kb.EventAircraftCreated, kb.EventAircraftUpdated:
			h.Broadcast(wire.SingleAircraftUpdate{Aircraft: ev.Aircraft})
		case kb.EventAircraftDeleted:
			h.Broadcast(wire.AircraftUpdate{Aircraft: store.ListAircraft()})
		case kb.EventDataSourceUpdated:
			h.Broadcast(wire.DataSourceUpdate{DataSources: store.ListDataSources()})
		}
	})
	defer unsubscribe()

	api := httpapi.New(store, fusion, manager, h, log, collector)
	apiSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Handler(),
	}

	log.Info(ctx, "starting surveillance API server", logging.String("addr", cfg.HTTPAddr))
	go func() {
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "API server exited", logging.Err(err))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.DetectionInterval > 0 {
		detectionInterval = cfg.DetectionInterval
		go runDetectionLoop(stopCtx, manager, log)
	}

	<-stopCtx.Done()

	log.Info(ctx, "shutting down surveillance server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// fusionChain translates the configured weights into fusion sources.
// Confirmation stays the stock plausibility check; the chain only
// changes names and weights.
func fusionChain(weights []config.SourceWeight) []core.FusionSource {
	if len(weights) == 0 {
		return core.DefaultSourceChain()
	}
	chain := make([]core.FusionSource, 0, len(weights))
	for _, w := range weights {
		chain = append(chain, core.FusionSource{Name: w.Name, Weight: w.Weight})
	}
	return chain
}

func loadRestrictions(log logging.Logger, store *kb.TrackStore, path string) {
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn(context.Background(), "skipping restriction load", logging.String("path", path), logging.Err(err))
		return
	}

	var recs []model.Restriction
	if err := json.Unmarshal(data, &recs); err != nil {
		log.Warn(context.Background(), "failed to parse restrictions", logging.String("path", path), logging.Err(err))
		return
	}

	added := 0
	for _, rec := range recs {
		if _, err := store.CreateRestriction(rec); err == nil {
			added++
		} else {
			log.Warn(context.Background(), "skipping restriction", logging.String("name", rec.Name), logging.Err(err))
		}
	}

	log.Info(context.Background(), "loaded airspace restrictions",
		logging.String("path", path),
		logging.Int("count", added),
	)
}

// seedSources registers the surveillance feeds the fusion engine
// corroborates against. Feed processes flip status through the API.
func seedSources(log logging.Logger, store *kb.TrackStore) {
	for _, d := range []model.DataSource{
		{Name: "adsb", Status: model.SourceOnline},
		{Name: "radar", Status: model.SourceOnline},
		{Name: "mlat", Status: model.SourceOnline},
	} {
		if _, err := store.CreateDataSource(d); err != nil {
			log.Warn(context.Background(), "skipping data source seed", logging.String("name", d.Name), logging.Err(err))
		}
	}
}
