// Package main is the entry point of the registration API.
//
// The API serves the six-step registration workflow, the catalog lookups,
// the back office and the /metrics endpoint. Emails triggered by workflow
// events are sent from this process by the notification handlers.
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

	// Application layer
	"github.com/campus-enroll/registration-hub/internal/application/command"
	"github.com/campus-enroll/registration-hub/internal/application/eventhandler"
	"github.com/campus-enroll/registration-hub/internal/application/query"
	"github.com/campus-enroll/registration-hub/internal/application/saga"
	"github.com/campus-enroll/registration-hub/internal/application/validation"

	// Domain layer
	"github.com/campus-enroll/registration-hub/internal/domain/notification"
	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"

	// Infrastructure layer
	"github.com/campus-enroll/registration-hub/internal/infrastructure/auth"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/external/mail"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/external/payments"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/messaging"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/metrics"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/persistence/postgres"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/campus-enroll/registration-hub/internal/interface/http"
	"github.com/campus-enroll/registration-hub/internal/interface/http/handlers"

	"github.com/campus-enroll/registration-hub/pkg/logger"
	"github.com/campus-enroll/registration-hub/pkg/retry"
	"github.com/campus-enroll/registration-hub/pkg/timeutil"
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

	appLog := setupLogger(cfg)
	slogger := appLog.Slog()
	slog.SetDefault(slogger)

	appLog.Info("starting registration API",
		logger.Bool("strict_step_ordering", cfg.Features.StrictStepOrdering()),
		logger.Bool("monotonic_step_progress", cfg.Features.MonotonicStepProgress()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	dbConn, err := connectDatabase(ctx, cfg, appLog)
	if err != nil {
		return err
	}
	defer func() {
		appLog.Info("closing database connection")
		dbConn.Close()
	}()

	if cfg.Database.MigrateOnStart {
		if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		appLog.Info("database schema is up to date")
	}

	store := postgres.NewStore(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (optional read cache and payment lock)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache    *redis.Cache
		invalidator   command.ProgressInvalidator
		progressCache query.ProgressCache
		locker        saga.Locker
	)
	if !cfg.Redis.Disabled {
		redisCache, err = redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			appLog.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		} else {
			defer redisCache.Close()
			pc := redis.NewProgressCache(redisCache, cfg.Redis.ProgressTTL)
			invalidator, progressCache = pc, pc
			locker = redis.NewLocker(redisCache)
			appLog.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS AND METRICS
	// ─────────────────────────────────────────────────────────────────────────
	m := metrics.New()

	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.AsyncMode = true
	busConfig.Logger = slogger
	busConfig.Observer = m
	bus := messaging.NewInMemoryEventBus(busConfig)
	bus.Use(messaging.LoggingMiddleware(slogger))
	defer func() {
		appLog.Info("closing event bus")
		_ = bus.Close()
	}()

	if err := m.Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe metrics: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. DOMAIN SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	clock := timeutil.Clock(timeutil.SystemClock)
	machine := registration.NewMachine(store.Registration(),
		registration.WithClock(clock),
		registration.WithStrictOrdering(cfg.Features.StrictStepOrdering()),
		registration.WithMonotonicProgress(cfg.Features.MonotonicStepProgress()),
	)
	validator := validation.New(clock)
	tokens := auth.NewVerificationTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.VerificationTTL)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. PAYMENT GATEWAYS AND SAGA
	// ─────────────────────────────────────────────────────────────────────────
	gateways := payment.NewGateways(buildGateways(cfg.Payment, slogger)...)
	paymentSaga := saga.NewPaymentSaga(store, machine, gateways, locker, bus, invalidator, m, appLog,
		saga.PaymentSagaConfig{Currency: cfg.Payment.Currency, LockTTL: cfg.Payment.LockTTL})

	// ─────────────────────────────────────────────────────────────────────────
	// 7. NOTIFICATIONS
	// ─────────────────────────────────────────────────────────────────────────
	var sender notification.Sender
	mailCfg := mailConfig(cfg.Mail)
	if mailCfg.IsConfigured() {
		sender = mail.NewSMTPSender(mailCfg, slogger)
	} else {
		appLog.Warn("SMTP is not configured, emails will be logged only")
		sender = mail.NewLogSender(slogger)
	}

	notifyConfig := eventhandler.DefaultNotifyConfig()
	notifyConfig.VerifyURL = cfg.Auth.VerifyURL
	notifyConfig.VerificationTTL = cfg.Auth.VerificationTTL
	if err := eventhandler.NewNotifyHandler(store.Accounts(), sender, slogger, notifyConfig).Register(bus); err != nil {
		return fmt.Errorf("failed to register notification handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. COMMANDS AND QUERIES
	// ─────────────────────────────────────────────────────────────────────────
	finalize := command.NewFinalizeHandler(store.Accounts(), machine, bus, invalidator, appLog)

	deps := httpserver.Dependencies{
		SubmitStep: command.NewSubmitStepHandler(command.SubmitStepConfig{
			UnitOfWork: store,
			Accounts:   store.Accounts(),
			Machine:    machine,
			Validator:  validator,
			Tokens:     tokens,
			Payments:   paymentSaga,
			Finalizer:  finalize,
			Events:     bus,
			Cache:      invalidator,
			Logger:     appLog,
			BcryptCost: cfg.Auth.BcryptCost,
		}),
		Finalize:     finalize,
		UpdateNotes:  command.NewUpdateNotesHandler(store.Accounts(), machine, invalidator, appLog),
		VerifyEmail:  command.NewVerifyEmailHandler(store.Accounts(), tokens, clock, bus, appLog),
		CourseAdmin:  command.NewCourseAdminHandler(store.Courses(), clock, appLog),
		UserAdmin:    command.NewUserAdminHandler(store, store.Accounts(), machine, validator, cfg.Auth.BcryptCost, bus, invalidator, appLog),
		Registration: query.NewRegistrationQueries(store.Accounts(), store.Registration(), progressCache, appLog),
		Summary: query.NewSummaryQuery(query.SummaryReader{
			Accounts:     store.Accounts(),
			Registration: store.Registration(),
			Profiles:     store.Profiles(),
			Courses:      store.Courses(),
			Selections:   store.Selections(),
			Payments:     store.Payments(),
			Geo:          store.Geo(),
		}),
		Catalog: query.NewCatalogQueries(store.Accounts(), store.Courses(), store.Geo()),
		Admin:   query.NewAdminQueries(store.Accounts(), store.Payments()),
		Logger:  appLog,
	}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = m
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.NewPingCheck(dbConn))
	if redisCache != nil {
		health.AddOptionalCheck("redis", handlers.NewPingCheck(redisCache))
		if cfg.HTTP.RateLimitPerMinute > 0 {
			deps.RateLimiter = redis.NewRateLimiter(redisCache, cfg.HTTP.RateLimitPerMinute, time.Minute)
		}
	}
	deps.HealthChecker = health

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	server := httpserver.NewServer(serverConfig(cfg), deps)
	serverErr := server.StartAsync()

	if len(cfg.Auth.AdminAPIKeys) == 0 {
		appLog.Warn("ADMIN_API_KEYS is empty, the back office rejects every request")
	}
	appLog.Info("registration API is running", logger.String("address", serverConfig(cfg).Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		appLog.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http server shutdown failed", logger.Err(err))
	}

	appLog.Info("shutdown completed", logger.Duration("uptime", server.Uptime()))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func connectDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	onRetry := func(attempt int, err error, delay time.Duration) {
		log.Warn("database not ready, retrying", logger.Int("attempt", attempt), logger.Duration("delay", delay), logger.Err(err))
	}
	var conn *postgres.Connection
	err := retry.DatabaseRetrier(onRetry).Do(ctx, func(ctx context.Context) error {
		c, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return retry.Retryable(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}

func mailConfig(c config.MailConfig) mail.Config {
	return mail.Config{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
		FromName: c.FromName,
		StartTLS: c.StartTLS,
		Timeout:  c.Timeout,
	}
}

// buildGateways returns one breaker-wrapped gateway per configured provider.
// Google Pay needs no credentials and is always available.
func buildGateways(c config.PaymentConfig, log *slog.Logger) []payment.Gateway {
	gs := []payment.Gateway{payments.WithBreaker(payments.NewGooglePay(), log)}
	if c.StripeSecretKey != "" {
		gs = append(gs, payments.WithBreaker(payments.NewStripe(payments.StripeConfig{SecretKey: c.StripeSecretKey}), log))
	} else {
		log.Warn("STRIPE_SECRET_KEY is empty, card payments are disabled")
	}
	if c.HasPayPal() {
		gs = append(gs, payments.WithBreaker(payments.NewPayPal(payments.PayPalConfig{
			BaseURL:      c.PayPalBaseURL,
			ClientID:     c.PayPalClientID,
			ClientSecret: c.PayPalClientSecret,
			Timeout:      c.PayPalTimeout,
		}), log))
	} else {
		log.Warn("PayPal credentials are empty, PayPal payments are disabled")
	}
	return gs
}

func serverConfig(cfg *config.Config) httpserver.Config {
	sc := httpserver.DefaultConfig()
	sc.Host = cfg.HTTP.Host
	sc.Port = cfg.HTTP.Port
	sc.ReadTimeout = cfg.HTTP.ReadTimeout
	sc.WriteTimeout = cfg.HTTP.WriteTimeout
	sc.IdleTimeout = cfg.HTTP.IdleTimeout
	sc.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	sc.EnableCORS = cfg.HTTP.EnableCORS
	if len(cfg.HTTP.AllowedOrigins) > 0 {
		sc.AllowedOrigins = cfg.HTTP.AllowedOrigins
	}
	sc.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	sc.APIKeyHeader = cfg.Auth.APIKeyHeader
	sc.AdminAPIKeys = cfg.Auth.AdminAPIKeys
	sc.Version = cfg.App.Version
	return sc
}

// setupLogger builds the process logger. Text output is only honoured
// outside production.
func setupLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}
	format := "json"
	if cfg.Observability.LogFormat == "text" && !cfg.IsProduction() {
		format = "text"
	}
	return logger.New(logger.Options{Level: level, Format: format, AddSource: true}).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)
}
