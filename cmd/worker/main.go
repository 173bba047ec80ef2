// Package main is the entry point of the background worker.
//
// The worker keeps the country and city reference tables fresh. It imports
// countries from RestCountries and cities from Nominatim on a cron schedule
// and exposes its own /metrics endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campus-enroll/registration-hub/config"

	// Infrastructure layer
	"github.com/campus-enroll/registration-hub/internal/infrastructure/external/geodata"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/messaging"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/metrics"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/persistence/postgres"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/scheduler"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/scheduler/jobs"

	"github.com/campus-enroll/registration-hub/pkg/retry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	log.Info("starting registration worker",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
		"geo_import_cron", cfg.GeoImport.CronSpec,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	var dbConn *postgres.Connection
	err = retry.DatabaseRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("database not ready, retrying", "attempt", attempt, "delay", delay, "error", err)
	}).Do(ctx, func(ctx context.Context) error {
		c, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return retry.Retryable(err)
		}
		dbConn = c
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection")
		dbConn.Close()
	}()

	// The worker writes reference tables, so it also makes sure the schema
	// exists.
	if cfg.Database.MigrateOnStart {
		if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	store := postgres.NewStore(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS AND METRICS
	// ─────────────────────────────────────────────────────────────────────────
	m := metrics.New()

	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.AsyncMode = false
	busConfig.Logger = log
	busConfig.Observer = m
	bus := messaging.NewInMemoryEventBus(busConfig)
	bus.Use(messaging.LoggingMiddleware(log))
	defer func() { _ = bus.Close() }()

	if err := m.Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe metrics: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. GEO IMPORT JOB
	// ─────────────────────────────────────────────────────────────────────────
	clientConfig := geodata.DefaultClientConfig()
	clientConfig.CountriesURL = cfg.GeoImport.CountriesURL
	clientConfig.GeocoderURL = cfg.GeoImport.GeocoderURL
	clientConfig.UserAgent = cfg.GeoImport.UserAgent
	clientConfig.Timeout = cfg.GeoImport.RequestTimeout
	clientConfig.MaxAttempts = cfg.GeoImport.MaxAttempts
	clientConfig.InitialBackoff = cfg.GeoImport.InitialBackoff
	clientConfig.PlacesPerCountry = cfg.GeoImport.PlacesPerCountry
	clientConfig.GeocoderRateLimit.RequestsPerSecond = cfg.GeoImport.GeocoderPerSecond
	clientConfig.GeocoderRateLimit.MinInterval = time.Duration(float64(time.Second) / cfg.GeoImport.GeocoderPerSecond)
	clientConfig.Logger = log
	geoClient := geodata.NewClient(clientConfig)

	importJob := jobs.NewImportGeoJob(geoClient, store.Geo(), bus, log, jobs.ImportGeoConfig{
		Concurrency: cfg.GeoImport.Concurrency,
		SkipCities:  !cfg.Features.IsEnabled(config.FeatureGeoImportCities),
		Timeout:     cfg.GeoImport.RunTimeout,
	})

	schedule, err := scheduler.ParseCron(cfg.GeoImport.CronSpec)
	if err != nil {
		return fmt.Errorf("invalid geo import schedule: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = log
	schedConfig.Timezone = cfg.App.Location
	schedConfig.Observer = m
	sched := scheduler.NewScheduler(schedConfig)

	if err := sched.Register(importJob, schedule); err != nil {
		return fmt.Errorf("failed to register %s: %w", importJob.Name(), err)
	}
	if !cfg.Scheduler.Enabled {
		if err := sched.SetEnabled(importJob.Name(), false); err != nil {
			return err
		}
		log.Warn("scheduler is disabled, jobs run only when triggered manually")
	}

	sched.OnJobComplete(func(result scheduler.JobResult) {
		if stats := importJob.LastStats(); result.JobName == importJob.Name() && stats != nil {
			log.Info("geo import finished",
				"run_id", stats.RunID,
				"countries", stats.Countries,
				"cities", stats.Cities,
				"skipped", stats.Skipped,
				"failed", stats.Failed,
				"success", result.Success,
			)
		}
	})

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	if err := sched.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if cfg.GeoImport.RunOnStart {
		go func() {
			if _, err := sched.RunNow(runCtx, importJob.Name()); err != nil {
				log.Error("initial geo import failed", "error", err)
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. METRICS ENDPOINT
	// ─────────────────────────────────────────────────────────────────────────
	var metricsServer *http.Server
	if cfg.Observability.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Observability.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	log.Info("registration worker is running", "jobs", len(sched.ListJobs()))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown", "timeout", cfg.App.ShutdownTimeout.String())
	stopRun()

	done := make(chan error, 1)
	go func() { done <- sched.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			log.Warn("scheduler stop", "error", err)
		}
	case <-time.After(cfg.App.ShutdownTimeout):
		log.Warn("scheduler did not stop in time")
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger configures structured logging: JSON in production or when
// requested, text otherwise.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Observability.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() || cfg.Observability.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler).With("service", cfg.App.Name+"-worker")
	slog.SetDefault(log)
	return log
}
