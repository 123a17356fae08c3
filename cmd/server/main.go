package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/internal/api"
	"github.com/dhightnm/fly-overhead-sub002/internal/config"
	"github.com/dhightnm/fly-overhead-sub002/internal/ingest"
	"github.com/dhightnm/fly-overhead-sub002/internal/providers"
	"github.com/dhightnm/fly-overhead-sub002/internal/ratelimit"
	"github.com/dhightnm/fly-overhead-sub002/internal/reconcile"
	"github.com/dhightnm/fly-overhead-sub002/internal/routes"
	"github.com/dhightnm/fly-overhead-sub002/internal/storage/sqlite"
	"github.com/dhightnm/fly-overhead-sub002/internal/websocket"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting fly-overhead server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Storage
	dbDir := filepath.Dir(cfg.Storage.SQLitePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Error("Failed to create database directory", logger.Error(err), logger.String("path", dbDir))
		os.Exit(1)
	}
	db, err := sqlite.Open(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to open SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	stateStore := sqlite.NewStateStore(db, log)
	routeStore := sqlite.NewRouteStore(db, log)
	airportStore := sqlite.NewAirportStore(db, log)
	feederStore := sqlite.NewFeederStore(db, log)

	// Airport reference data, imported once per database
	loadAirportData(cfg, airportStore, log)

	// Rate limiters, one per external provider
	baseBackoff := time.Duration(cfg.RateLimit.BaseBackoffSecs) * time.Second
	maxBackoff := time.Duration(cfg.RateLimit.MaxBackoffSecs) * time.Second
	histLimit := ratelimit.New("historical-api", baseBackoff, maxBackoff, log)
	rtLimit := ratelimit.New("realtime-api", baseBackoff, maxBackoff, log)

	// External route providers
	var historical routes.HistoricalProvider
	if cfg.Providers.Historical.Enabled {
		historical = providers.NewHistoricalClient(
			cfg.Providers.Historical.BaseURL,
			time.Duration(cfg.Providers.Historical.TimeoutSecs)*time.Second,
			log,
		)
	}
	var realtime routes.RealtimeProvider
	if cfg.Providers.Realtime.Enabled {
		realtime = providers.NewRealtimeClient(
			cfg.Providers.Realtime.BaseURL,
			cfg.Providers.Realtime.APIKey,
			time.Duration(cfg.Providers.Realtime.TimeoutSecs)*time.Second,
			log,
		)
	}

	// Route resolution
	resolver := routes.NewResolver(
		routeStore, stateStore, airportStore,
		historical, realtime,
		histLimit, rtLimit,
		routes.Config{
			TTLs: routes.TTLs{
				Complete:            time.Duration(cfg.Routes.CompleteTTLHours) * time.Hour,
				InferenceIncomplete: time.Duration(cfg.Routes.InferredTTLMinutes) * time.Minute,
				OtherIncomplete:     time.Duration(cfg.Routes.IncompleteTTLHours) * time.Hour,
			},
			InferenceRadiusKM: cfg.Routes.InferenceSearchRadiusKm,
		},
		log,
	)

	// Reconciliation and ingest
	engine := reconcile.New(stateStore, log)
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	var pollerClient *ingest.Client
	if cfg.Ingest.Enabled {
		pollerClient = ingest.NewClient(
			cfg.Ingest.SourceURL,
			cfg.Ingest.BBoxLamin, cfg.Ingest.BBoxLomin,
			cfg.Ingest.BBoxLamax, cfg.Ingest.BBoxLomax,
			cfg.Ingest.SourcePriority,
			time.Duration(cfg.Ingest.TimeoutSecs)*time.Second,
			log,
		)
	}
	ingestService := ingest.NewService(pollerClient, engine, wsServer,
		time.Duration(cfg.Ingest.FetchIntervalSecs)*time.Second, log)
	feederRegistry := ingest.NewRegistry(feederStore, cfg.Feeders.DefaultPriority, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ingestService.Start(ctx)

	var backfiller *routes.Backfiller
	if cfg.Routes.BackfillEnabled {
		backfiller = routes.NewBackfiller(resolver, stateStore,
			time.Duration(cfg.Routes.BackfillIntervalSecs)*time.Second,
			time.Duration(cfg.Routes.BackfillActiveWindowSecs)*time.Second,
			cfg.Routes.BackfillWorkers, log)
		backfiller.Start(ctx)
	}

	// HTTP server
	handler := api.NewHandler(ingestService, feederRegistry, stateStore,
		resolver, wsServer, histLimit, rtLimit, log)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	if backfiller != nil {
		backfiller.Stop()
	}
	ingestService.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", logger.Error(err))
	}

	log.Info("Server stopped")
}

// loadAirportData imports the OurAirports CSVs when configured and the
// airports table is still empty
func loadAirportData(cfg *config.Config, store *sqlite.AirportStore, log *logger.Logger) {
	if cfg.Airports.AirportsCSVPath == "" {
		return
	}

	ctx := context.Background()
	count, err := store.CountAirports(ctx)
	if err != nil {
		log.Error("Failed to check airport data", logger.Error(err))
		return
	}
	if count > 0 {
		log.Info("Airport data already loaded", logger.Int("airports", count))
		return
	}

	f, err := os.Open(cfg.Airports.AirportsCSVPath)
	if err != nil {
		log.Error("Failed to open airports CSV", logger.Error(err))
		return
	}
	defer f.Close()
	if _, err := store.ImportAirportsCSV(ctx, f); err != nil {
		log.Error("Airport import failed", logger.Error(err))
		return
	}

	if cfg.Airports.RunwaysCSVPath == "" {
		return
	}
	rf, err := os.Open(cfg.Airports.RunwaysCSVPath)
	if err != nil {
		log.Error("Failed to open runways CSV", logger.Error(err))
		return
	}
	defer rf.Close()
	if _, err := store.ImportRunwaysCSV(ctx, rf); err != nil {
		log.Error("Runway import failed", logger.Error(err))
	}
}
