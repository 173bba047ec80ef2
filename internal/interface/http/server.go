// Package http exposes the registration workflow, the catalog lookups and the
// back office over JSON/HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/campus-enroll/registration-hub/internal/application/command"
	"github.com/campus-enroll/registration-hub/internal/application/query"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/metrics"
	"github.com/campus-enroll/registration-hub/internal/interface/http/handlers"
	"github.com/campus-enroll/registration-hub/pkg/logger"
)

var ErrServerRunning = errors.New("http: server already running")

// Config holds listener, limit and back-office settings.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int64

	EnableCORS     bool
	AllowedOrigins []string

	// RateLimitPerMinute is per client IP. Zero turns limiting off.
	RateLimitPerMinute int

	// APIKeyHeader carries the back-office key. With no AdminAPIKeys every
	// /api/v1/admin request is rejected.
	APIKeyHeader string
	AdminAPIKeys []string

	Version string
}

func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       1 << 20,
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
		APIKeyHeader:       "X-API-Key",
		Version:            "dev",
	}
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dependencies are the application handlers behind the routes. A nil
// handler answers 501.
type Dependencies struct {
	SubmitStep  *command.SubmitStepHandler
	Finalize    *command.FinalizeHandler
	UpdateNotes *command.UpdateNotesHandler
	VerifyEmail *command.VerifyEmailHandler
	CourseAdmin *command.CourseAdminHandler
	UserAdmin   *command.UserAdminHandler

	Registration *query.RegistrationQueries
	Summary      *query.SummaryQuery
	Catalog      *query.CatalogQueries
	Admin        *query.AdminQueries

	Metrics       *metrics.Metrics
	HealthChecker handlers.HealthChecker

	// RateLimiter replaces the in-process per-IP window, typically with the
	// Redis limiter so replicas share counters.
	RateLimiter Limiter

	Logger *logger.Logger
}

// Server serves the JSON API.
type Server struct {
	config  Config
	deps    Dependencies
	log     *logger.Logger
	mux     *http.ServeMux
	handler http.Handler
	limiter Limiter
	srv     *http.Server

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer registers the routes and wraps them in the middleware stack.
func NewServer(config Config, deps Dependencies) *Server {
	def := DefaultConfig()
	if config.APIKeyHeader == "" {
		config.APIKeyHeader = def.APIKeyHeader
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = def.MaxBodyBytes
	}

	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		config: config,
		deps:   deps,
		log:    log.With(logger.Component("http")),
		mux:    http.NewServeMux(),
	}
	if config.RateLimitPerMinute > 0 {
		s.limiter = deps.RateLimiter
		if s.limiter == nil {
			s.limiter = newWindowLimiter(config.RateLimitPerMinute, time.Minute, time.Now)
		}
	}

	s.routes()
	s.handler = handlers.ChainHandler(s.mux, s.middleware()...)
	s.srv = &http.Server{
		Addr:           config.Address(),
		Handler:        s.handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the mux with every middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() {
	m := s.mux

	m.HandleFunc("GET /health", s.handleHealth)
	m.HandleFunc("GET /ready", s.handleReady)
	m.HandleFunc("GET /live", s.handleLive)
	m.HandleFunc("GET /{$}", s.handleRoot)
	if s.deps.Metrics != nil {
		m.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	m.HandleFunc("POST /api/v1/registration/steps/{step}", s.handleSubmitStep)
	m.HandleFunc("GET /api/v1/registration/progress", s.handleGetProgress)
	m.HandleFunc("GET /api/v1/registration/status", s.handleGetStatus)
	m.HandleFunc("GET /api/v1/registration/summary", s.handleGetSummary)
	m.HandleFunc("POST /api/v1/registration/finalize", s.handleFinalize)
	m.HandleFunc("POST /api/v1/registration/notes", s.handleUpdateNotes)

	m.HandleFunc("GET /api/v1/accounts/email-availability", s.handleEmailAvailability)
	m.HandleFunc("GET /api/v1/accounts/verify-email", s.handleVerifyEmail)
	m.HandleFunc("GET /api/v1/courses", s.handleListCourses)
	m.HandleFunc("GET /api/v1/countries", s.handleListCountries)
	m.HandleFunc("GET /api/v1/countries/{code}/cities", s.handleListCities)

	// The back office has its own mux so the key check and no-cache headers
	// cover every admin route, matched or not.
	admin := http.NewServeMux()
	admin.HandleFunc("GET /api/v1/admin/courses", s.handleAdminListCourses)
	admin.HandleFunc("POST /api/v1/admin/courses", s.handleAdminCreateCourse)
	admin.HandleFunc("PUT /api/v1/admin/courses/{id}", s.handleAdminUpdateCourse)
	admin.HandleFunc("POST /api/v1/admin/courses/{id}/activate", s.handleAdminSetCourseActive(true))
	admin.HandleFunc("POST /api/v1/admin/courses/{id}/deactivate", s.handleAdminSetCourseActive(false))
	admin.HandleFunc("GET /api/v1/admin/users", s.handleAdminListUsers)
	admin.HandleFunc("POST /api/v1/admin/users", s.handleAdminCreateUser)
	admin.HandleFunc("DELETE /api/v1/admin/users/{id}", s.handleAdminDeleteUser)
	admin.HandleFunc("POST /api/v1/admin/users/{id}/step", s.handleAdminOverrideStep)
	admin.HandleFunc("GET /api/v1/admin/payments", s.handleAdminListPayments)

	keys := handlers.NewAPIKeyAuth(s.config.APIKeyHeader, s.config.AdminAPIKeys)
	m.Handle("/api/v1/admin/", handlers.ChainHandler(admin, handlers.NoCacheMiddleware, keys.Middleware))
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrServerRunning
	}
	s.running, s.startedAt = true, time.Now()
	s.mu.Unlock()

	s.log.Info("starting HTTP server", logger.String("address", s.srv.Addr))
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("http: serve: %w", err)
	}
	return nil
}

// StartAsync runs Start in a goroutine. The channel yields Start's error, if
// any, and is then closed.
func (s *Server) StartAsync() <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := s.Start(); err != nil {
			errc <- err
		}
	}()
	return errc
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()
	if !wasRunning {
		return nil
	}
	s.log.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime is zero while the server is stopped.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
