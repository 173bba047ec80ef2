package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-enroll/registration-hub/internal/application/command"
	"github.com/campus-enroll/registration-hub/internal/application/query"
	"github.com/campus-enroll/registration-hub/internal/application/saga"
	"github.com/campus-enroll/registration-hub/internal/application/validation"
	"github.com/campus-enroll/registration-hub/internal/domain/course"
	"github.com/campus-enroll/registration-hub/internal/domain/geo"
	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/auth"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/messaging"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/metrics"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/persistence/memory"
	"github.com/campus-enroll/registration-hub/internal/interface/http/handlers"
	"github.com/campus-enroll/registration-hub/pkg/logger"
	"github.com/campus-enroll/registration-hub/pkg/timeutil"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const adminKey = "admin-secret"

type cardGateway struct{}

func (cardGateway) Method() payment.Method { return payment.MethodStripe }

func (cardGateway) Charge(_ context.Context, req payment.ChargeRequest) (payment.Outcome, error) {
	if req.Token == "pm_card_declined" {
		return payment.Outcome{Reason: "card_declined"}, nil
	}
	return payment.Outcome{Success: true, TransactionID: "pi_" + req.IdempotencyKey}, nil
}

type fixture struct {
	store   *memory.Store
	tokens  *auth.VerificationTokenService
	metrics *metrics.Metrics
	server  *Server
	course  *course.Course
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	clock := timeutil.FixedClock(now)
	machine := registration.NewMachine(store.Registration(), registration.WithClock(clock))
	tokens := auth.NewVerificationTokenService("test-signing-key", "registration-hub", time.Hour)
	m := metrics.New()
	log := logger.NewNop()

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Observer: m})
	require.NoError(t, m.Subscribe(bus))

	require.NoError(t, store.Geo().UpsertCountry(ctx, &geo.Country{Code: "US", Name: "United States", IsActive: true}))
	c, err := course.NewCourse(course.Params{Name: "Distributed Systems", Fee: 50000, DiscountPercentage: 10, IsActive: true}, now)
	require.NoError(t, err)
	require.NoError(t, store.Courses().Create(ctx, c))

	v := validation.New(clock)
	payments := saga.NewPaymentSaga(store, machine, payment.NewGateways(cardGateway{}), nil, bus, nil, m, log, saga.DefaultPaymentSagaConfig())
	finalize := command.NewFinalizeHandler(store.Accounts(), machine, bus, nil, log)

	deps := Dependencies{
		SubmitStep: command.NewSubmitStepHandler(command.SubmitStepConfig{
			UnitOfWork: store,
			Accounts:   store.Accounts(),
			Machine:    machine,
			Validator:  v,
			Tokens:     tokens,
			Payments:   payments,
			Finalizer:  finalize,
			Events:     bus,
			Logger:     log,
			BcryptCost: bcrypt.MinCost,
		}),
		Finalize:     finalize,
		UpdateNotes:  command.NewUpdateNotesHandler(store.Accounts(), machine, nil, log),
		VerifyEmail:  command.NewVerifyEmailHandler(store.Accounts(), tokens, clock, bus, log),
		CourseAdmin:  command.NewCourseAdminHandler(store.Courses(), clock, log),
		UserAdmin:    command.NewUserAdminHandler(store, store.Accounts(), machine, v, bcrypt.MinCost, bus, nil, log),
		Registration: query.NewRegistrationQueries(store.Accounts(), store.Registration(), nil, log),
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
		Metrics: m,
		Logger:  log,
	}

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.AdminAPIKeys = []string{adminKey}
	for _, fn := range mutate {
		fn(&cfg)
	}

	return &fixture{store: store, tokens: tokens, metrics: m, server: NewServer(cfg, deps), course: c}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *ResponseMeta   `json:"meta"`
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Code != http.StatusNoContent && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func (f *fixture) admin(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	return f.do(t, method, path, body, "X-API-Key", adminKey)
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (f *fixture) register(t *testing.T, email string) StepResponse {
	t.Helper()
	code, env := f.do(t, http.MethodPost, "/api/v1/registration/steps/account", map[string]any{
		"email": email, "password": "Sup3r$ecret", "first_name": "Jane", "last_name": "Doe",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	return decode[StepResponse](t, env)
}

func (f *fixture) submitUntilPayment(t *testing.T, ref string) {
	t.Helper()
	steps := []struct {
		name string
		body map[string]any
	}{
		{"personal_info", map[string]any{"user": ref, "date_of_birth": "1995-06-15", "gender": "Female", "phone_number": "+15551234567", "nationality": "United States"}},
		{"address", map[string]any{"user": ref, "street_address": "1 Main St", "country": "us", "city": "Springfield", "postal_code": "12345", "phone_number": "+15551234567"}},
		{"education", map[string]any{"user": ref, "degree": "Bachelor's", "institution": "State University", "graduation_year": 2017}},
		{"course-selection", map[string]any{"user": ref, "courses": []string{f.course.ID.String()}, "study_duration": 6}},
		{"review", map[string]any{"user": ref}},
	}
	for _, s := range steps {
		code, env := f.do(t, http.MethodPost, "/api/v1/registration/steps/"+s.name, s.body)
		require.Equal(t, http.StatusOK, code, "%s: %+v", s.name, env.Error)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Registration workflow
// ──────────────────────────────────────────────────────────────────────────────

func TestServer_RegistrationFlow(t *testing.T) {
	f := newFixture(t)

	created := f.register(t, "Jane@Example.com")
	require.NotNil(t, created.Account)
	assert.Equal(t, "jane@example.com", created.Account.User.Email)
	assert.Equal(t, 1, created.Step)

	ref := created.UserID.String()
	f.submitUntilPayment(t, "jane@example.com")

	code, env := f.do(t, http.MethodGet, "/api/v1/registration/progress?user="+ref, nil)
	require.Equal(t, http.StatusOK, code)
	progress := decode[query.ProgressDTO](t, env)
	assert.Equal(t, int(registration.StepReview), progress.CurrentStep)
	assert.Equal(t, 75.0, progress.ProgressPercentage)

	code, env = f.do(t, http.MethodGet, "/api/v1/registration/summary?user="+ref, nil)
	require.Equal(t, http.StatusOK, code)
	summary := decode[query.SummaryDTO](t, env)
	require.NotNil(t, summary.Selection)
	assert.Equal(t, 450.0, summary.Selection.TotalFee)
	assert.Nil(t, summary.Payment)

	code, env = f.do(t, http.MethodPost, "/api/v1/registration/steps/payment", map[string]any{
		"user": ref, "method": "stripe", "amount": 450, "token": "pm_card_visa",
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	paid := decode[StepResponse](t, env)
	require.NotNil(t, paid.Payment)
	assert.Equal(t, "Completed", paid.Payment.Status)
	assert.Equal(t, int(registration.StepPayment), paid.Step)

	code, env = f.do(t, http.MethodPost, "/api/v1/registration/finalize", map[string]any{"user": ref})
	require.Equal(t, http.StatusOK, code, env.Error)
	var done struct {
		Completion CompletionResponse `json:"completion"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &done))
	assert.True(t, done.Completion.IsCompleted)
	assert.True(t, done.Completion.FirstCompletion)
	require.NotNil(t, done.Completion.CompletionDate)

	code, env = f.do(t, http.MethodPost, "/api/v1/registration/steps/confirmation", map[string]any{"user": ref})
	require.Equal(t, http.StatusOK, code, env.Error)
	again := decode[StepResponse](t, env)
	require.NotNil(t, again.Completion)
	assert.False(t, again.Completion.FirstCompletion)
	assert.True(t, again.Completion.CompletionDate.Equal(*done.Completion.CompletionDate))

	code, env = f.do(t, http.MethodGet, "/api/v1/registration/status?user=jane@example.com", nil)
	require.Equal(t, http.StatusOK, code)
	status := decode[query.StatusDTO](t, env)
	assert.True(t, status.IsCompleted)
}

func TestServer_FinalizePreconditions(t *testing.T) {
	f := newFixture(t)
	ref := f.register(t, "early@example.com").UserID.String()

	code, env := f.do(t, http.MethodPost, "/api/v1/registration/finalize", map[string]any{"user": ref})
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "steps-incomplete", env.Error.Code)

	f.submitUntilPayment(t, ref)
	code, env = f.admin(t, http.MethodPost, "/api/v1/admin/users/"+ref+"/step", map[string]any{"step": 7})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = f.do(t, http.MethodPost, "/api/v1/registration/finalize", map[string]any{"user": ref})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "payment-missing", env.Error.Code)
}

func TestServer_DeclinedPaymentKeepsStep(t *testing.T) {
	f := newFixture(t)
	ref := f.register(t, "declined@example.com").UserID.String()
	f.submitUntilPayment(t, ref)

	code, env := f.do(t, http.MethodPost, "/api/v1/registration/steps/payment", map[string]any{
		"user": ref, "method": "stripe", "amount": 450, "token": "pm_card_declined",
	})
	assert.Equal(t, http.StatusPaymentRequired, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "payment_declined", env.Error.Code)

	_, env = f.do(t, http.MethodGet, "/api/v1/registration/progress?user="+ref, nil)
	assert.Equal(t, int(registration.StepReview), decode[query.ProgressDTO](t, env).CurrentStep)

	_, env = f.admin(t, http.MethodGet, "/api/v1/admin/payments?status=Failed&user_id="+ref, nil)
	assert.Equal(t, 1, env.Meta.TotalCount)
}

func TestServer_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	ref := f.register(t, "errors@example.com").UserID.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing user", http.MethodGet, "/api/v1/registration/progress", nil, http.StatusBadRequest, "validation_error"},
		{"unknown user", http.MethodGet, "/api/v1/registration/progress?user=" + uuid.NewString(), nil, http.StatusNotFound, "not_found"},
		{"unknown step", http.MethodPost, "/api/v1/registration/steps/hobbies", map[string]any{"user": ref}, http.StatusBadRequest, "validation_error"},
		{"duplicate email", http.MethodPost, "/api/v1/registration/steps/account", map[string]any{
			"email": "ERRORS@example.com", "password": "Sup3r$ecret", "first_name": "J", "last_name": "D",
		}, http.StatusConflict, "conflict"},
		{"empty notes", http.MethodPost, "/api/v1/registration/notes", map[string]any{"user": ref, "progress_notes": "  "}, http.StatusBadRequest, "validation_error"},
		{"unknown country", http.MethodGet, "/api/v1/countries/FR/cities", nil, http.StatusNotFound, "not_found"},
		{"malformed country", http.MethodGet, "/api/v1/countries/FRA/cities", nil, http.StatusBadRequest, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestServer_ValidationFields(t *testing.T) {
	f := newFixture(t)
	ref := f.register(t, "fields@example.com").UserID.String()

	code, env := f.do(t, http.MethodPost, "/api/v1/registration/steps/personal_info", map[string]any{
		"user": ref, "date_of_birth": "2010-01-01", "gender": "Female", "phone_number": "5551234", "nationality": "United States",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Fields, "phone_number")
	assert.Contains(t, env.Error.Fields, "date_of_birth")
}

func TestServer_AccountsAndCatalog(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, "verify@example.com")

	_, env := f.do(t, http.MethodGet, "/api/v1/accounts/email-availability?email=VERIFY@example.com", nil)
	assert.Equal(t, false, decode[map[string]any](t, env)["available"])
	_, env = f.do(t, http.MethodGet, "/api/v1/accounts/email-availability?email=new@example.com", nil)
	assert.Equal(t, true, decode[map[string]any](t, env)["available"])

	token, err := f.tokens.Issue(created.UserID, "verify@example.com")
	require.NoError(t, err)
	code, env := f.do(t, http.MethodGet, "/api/v1/accounts/verify-email?token="+token, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	user := decode[query.UserDTO](t, env)
	assert.True(t, user.IsActive)
	assert.True(t, user.EmailVerified)

	code, _ = f.do(t, http.MethodGet, "/api/v1/accounts/verify-email?token=garbage", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = f.do(t, http.MethodGet, "/api/v1/courses", nil)
	require.Equal(t, http.StatusOK, code)
	courses := decode[[]query.CourseDTO](t, env)
	require.Len(t, courses, 1)
	assert.Equal(t, 450.0, courses[0].DiscountedFee)

	_, env = f.do(t, http.MethodGet, "/api/v1/countries", nil)
	countries := decode[[]query.CountryDTO](t, env)
	require.Len(t, countries, 1)
	assert.Equal(t, "US", countries[0].Code)
}

// ──────────────────────────────────────────────────────────────────────────────
// Back office
// ──────────────────────────────────────────────────────────────────────────────

func TestServer_AdminRequiresKey(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/v1/admin/users", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing_api_key", env.Error.Code)

	code, env = f.do(t, http.MethodGet, "/api/v1/admin/users", nil, "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid_api_key", env.Error.Code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/admin/users", nil, "Authorization", "Bearer "+adminKey)
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_AdminCourses(t *testing.T) {
	f := newFixture(t)

	code, env := f.admin(t, http.MethodPost, "/api/v1/admin/courses", map[string]any{
		"name": "Databases", "fee": 300, "discount_percentage": 20,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	created := decode[query.CourseDTO](t, env)
	assert.Equal(t, 240.0, created.DiscountedFee)
	assert.True(t, created.IsActive)

	code, _ = f.admin(t, http.MethodPost, "/api/v1/admin/courses", map[string]any{"name": "Databases", "fee": 1})
	assert.Equal(t, http.StatusConflict, code)

	code, env = f.admin(t, http.MethodPost, "/api/v1/admin/courses/"+created.ID.String()+"/deactivate", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.False(t, decode[query.CourseDTO](t, env).IsActive)

	_, env = f.do(t, http.MethodGet, "/api/v1/courses", nil)
	assert.Len(t, decode[[]query.CourseDTO](t, env), 1)
	_, env = f.admin(t, http.MethodGet, "/api/v1/admin/courses", nil)
	assert.Len(t, decode[[]query.CourseDTO](t, env), 2)

	code, env = f.admin(t, http.MethodPut, "/api/v1/admin/courses/"+created.ID.String(), map[string]any{
		"name": "Databases II", "fee": 300, "discount_percentage": 120,
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.admin(t, http.MethodPost, "/api/v1/admin/courses/not-a-uuid/activate", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_AdminUsers(t *testing.T) {
	f := newFixture(t)

	code, env := f.admin(t, http.MethodPost, "/api/v1/admin/users", map[string]any{
		"email": "staff@example.com", "password": "Sup3r$ecret", "first_name": "Sam", "last_name": "Staff", "is_staff": true,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	user := decode[query.UserDTO](t, env)
	assert.True(t, user.IsActive)
	assert.True(t, user.IsStaff)

	code, env = f.admin(t, http.MethodPost, "/api/v1/admin/users/"+user.ID.String()+"/step", map[string]any{"step": "review", "notes": "fast-tracked"})
	require.Equal(t, http.StatusOK, code, env.Error)
	progress := decode[query.ProgressDTO](t, env)
	assert.Equal(t, int(registration.StepReview), progress.CurrentStep)
	assert.Equal(t, "fast-tracked", progress.ProgressNotes)

	code, env = f.admin(t, http.MethodPost, "/api/v1/admin/users/"+user.ID.String()+"/step", map[string]any{"step": 2})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, 2, decode[query.ProgressDTO](t, env).CurrentStep)

	code, _ = f.admin(t, http.MethodPost, "/api/v1/admin/users/"+user.ID.String()+"/step", map[string]any{"step": 9})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.admin(t, http.MethodDelete, "/api/v1/admin/users/"+user.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = f.admin(t, http.MethodDelete, "/api/v1/admin/users/"+user.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, code)

	_, env = f.admin(t, http.MethodGet, "/api/v1/admin/users", nil)
	assert.Empty(t, decode[[]query.UserDTO](t, env))
	_, env = f.admin(t, http.MethodGet, "/api/v1/admin/users?include_deleted=true", nil)
	listed := decode[[]query.UserDTO](t, env)
	require.Len(t, listed, 1)
	assert.NotNil(t, listed[0].DeletedAt)
}

// ──────────────────────────────────────────────────────────────────────────────
// Probes & middleware
// ──────────────────────────────────────────────────────────────────────────────

func TestServer_HealthAndMetrics(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return nil })

	f := newFixture(t)
	f.server.deps.HealthChecker = checker

	code, _ := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, code)

	checker.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	code, env := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	status := decode[handlers.HealthStatus](t, env)
	assert.Equal(t, "Some checks failed: redis", status.Message)
	code, _ = f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	f.register(t, "metrics@example.com")

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `registration_hub_http_requests_total{method="POST",route="POST /api/v1/registration/steps/{step}",status="201"} 1`)
	assert.Contains(t, body, `route="GET /health"`)
}

func TestServer_RequestIDAndSecurityHeaders(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var env JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "req-123", env.RequestID)
}

func TestServer_RateLimit(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.RateLimitPerMinute = 2 })
	f.server.limiter = newWindowLimiter(2, time.Minute, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		code, _ := f.do(t, http.MethodGet, "/live", nil)
		require.Equal(t, http.StatusOK, code)
	}
	code, env := f.do(t, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limit_exceeded", env.Error.Code)

	code, _ = f.do(t, http.MethodGet, "/live", nil, "X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_BodyLimit(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxBodyBytes = 64 })

	code, env := f.do(t, http.MethodPost, "/api/v1/registration/notes", map[string]any{
		"user": "someone@example.com", "progress_notes": strings.Repeat("x", 200),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, "payload_too_large", env.Error.Code)
}

func TestServer_BodyLimitWithoutContentLength(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxBodyBytes = 64 })

	for _, path := range []string{"/api/v1/registration/steps/account", "/api/v1/registration/notes"} {
		t.Run(path, func(t *testing.T) {
			raw := `{"user":"someone@example.com","progress_notes":"` + strings.Repeat("x", 200) + `"}`
			// An anonymous reader hides the length, as with chunked uploads.
			req := httptest.NewRequest(http.MethodPost, path, struct{ io.Reader }{strings.NewReader(raw)})
			req.Header.Set("Content-Type", "application/json")
			require.EqualValues(t, -1, req.ContentLength)

			rec := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(rec, req)

			var env envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
			assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
			assert.Equal(t, "payload_too_large", env.Error.Code)
		})
	}
}

func TestClassify(t *testing.T) {
	status, apiErr := classify(errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", apiErr.Code)
	assert.NotContains(t, apiErr.Message, "pq")
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestServer_RateLimiterFailsOpen(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.RateLimitPerMinute = 1 })
	f.server.limiter = brokenLimiter{}

	for i := 0; i < 3; i++ {
		code, _ := f.do(t, http.MethodGet, "/live", nil)
		assert.Equal(t, http.StatusOK, code)
	}
}

func TestWindowLimiter_ResetsEachWindow(t *testing.T) {
	clock := now
	l := newWindowLimiter(1, time.Minute, func() time.Time { return clock })
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "a")
	assert.False(t, ok)
	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok)

	clock = clock.Add(time.Minute)
	ok, _ = l.Allow(ctx, "a")
	assert.True(t, ok)
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[2001:db8::1]:4321"
	assert.Equal(t, "2001:db8::1", getClientIP(r))

	r.Header.Set("X-Real-IP", "192.0.2.4")
	assert.Equal(t, "192.0.2.4", getClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", getClientIP(r))
}

func TestClassify_Ordering(t *testing.T) {
	status, apiErr := classify(fmt.Errorf("submit step: %w", shared.NewDomainError("course", "Get", shared.ErrNotFound, "course not found")))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Equal(t, "course not found", apiErr.Message)

	status, apiErr = classify(fmt.Errorf("charge: %w", shared.ErrUnauthorized))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", apiErr.Message)
}
