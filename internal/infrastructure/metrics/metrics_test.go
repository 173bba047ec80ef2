package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/messaging"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveHTTP("GET", "/health", 200, time.Millisecond)
		m.ObservePayment("stripe", "success", time.Second)
		m.ObserveEvent("x", time.Millisecond, true)
		m.ObserveJob("import_geo", time.Second, nil)
		m.ObserveGeoImport(1, 2, 3, 0, time.Now())
		assert.NoError(t, m.Subscribe(nil))
	})
}

func TestMetrics_Observe(t *testing.T) {
	m := New()

	m.ObserveHTTP("POST", "/api/v1/registration/finalize", 409, 20*time.Millisecond)
	m.ObservePayment("paypal", "failed", time.Second)
	m.ObserveJob("import_geo", time.Minute, errors.New("down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/v1/registration/finalize", "409")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentOutcomes.WithLabelValues("paypal", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("import_geo", "failure")))
}

func TestMetrics_SubscribesToWorkflowEvents(t *testing.T) {
	m := New()
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Observer: m})
	require.NoError(t, m.Subscribe(bus))

	require.NoError(t, bus.Publish(shared.NewStepAdvancedEvent("u1", 6, 7, "stripe-success")))
	require.NoError(t, bus.Publish(shared.NewRegistrationCompletedEvent("u1", "a@b.c", "A", "B", time.Now())))
	require.NoError(t, bus.Publish(shared.NewGeoImportCompletedEvent("run", 250, 4000, 3, 0, time.Hour)))
	require.NoError(t, bus.Close())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepTransitions.WithLabelValues("payment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Completions))
	assert.Equal(t, 4000.0, testutil.ToFloat64(m.GeoImported.WithLabelValues("city", "written")))
	assert.Greater(t, testutil.ToFloat64(m.GeoLastImport), 0.0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventHandlers.WithLabelValues(string(shared.EventStepAdvanced), "success")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/health", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "registration_hub_http_requests_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
