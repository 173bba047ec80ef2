// Package metrics exposes Prometheus instruments for the HTTP layer, the
// registration workflow, payment reconciliation and the reference-data import.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

const namespace = "registration_hub"

// Metrics holds every instrument. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	StepTransitions *prometheus.CounterVec
	Completions     prometheus.Counter

	PaymentOutcomes *prometheus.CounterVec
	PaymentDuration *prometheus.HistogramVec

	EventHandlers *prometheus.CounterVec
	EventDuration *prometheus.HistogramVec

	JobRuns       *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	GeoImported   *prometheus.CounterVec
	GeoLastImport prometheus.Gauge
}

// New creates and registers all instruments on a fresh registry that also
// carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		StepTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_step_transitions_total",
			Help:      "Writes of current_step by target step",
		}, []string{"step"}),
		Completions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_completions_total",
			Help:      "Registrations finalized for the first time",
		}),

		PaymentOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_attempts_total",
			Help:      "Payment reconciliations by method and outcome",
		}, []string{"method", "outcome"}),
		PaymentDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_duration_seconds",
			Help:      "Payment reconciliation latency including the gateway call",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),

		EventHandlers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_executions_total",
			Help:      "Event handler executions by event type and result",
		}, []string{"event_type", "result"}),
		EventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_handler_duration_seconds",
			Help:      "Event handler latency by event type",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"event_type"}),

		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and result",
		}, []string{"job", "result"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}, []string{"job"}),
		GeoImported: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_import_records_total",
			Help:      "Reference-data records written by the import, by kind and result",
		}, []string{"kind", "result"}),
		GeoLastImport: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geo_import_last_success_timestamp_seconds",
			Help:      "Unix time of the last import run that finished without errors",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// ObservePayment records one reconciliation.
func (m *Metrics) ObservePayment(method, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.PaymentOutcomes.WithLabelValues(method, outcome).Inc()
	m.PaymentDuration.WithLabelValues(method).Observe(took.Seconds())
}

// ObserveEvent records one event handler execution.
func (m *Metrics) ObserveEvent(eventType string, took time.Duration, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.EventHandlers.WithLabelValues(eventType, result).Inc()
	m.EventDuration.WithLabelValues(eventType).Observe(took.Seconds())
}

// ObserveJob records one scheduled job run.
func (m *Metrics) ObserveJob(job string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
	m.JobDuration.WithLabelValues(job).Observe(took.Seconds())
}

// ObserveGeoImport records the counts of one import run.
func (m *Metrics) ObserveGeoImport(countries, cities, skipped, failed int, finished time.Time) {
	if m == nil {
		return
	}
	m.GeoImported.WithLabelValues("country", "written").Add(float64(countries))
	m.GeoImported.WithLabelValues("city", "written").Add(float64(cities))
	m.GeoImported.WithLabelValues("any", "skipped").Add(float64(skipped))
	m.GeoImported.WithLabelValues("any", "failed").Add(float64(failed))
	if failed == 0 {
		m.GeoLastImport.Set(float64(finished.Unix()))
	}
}

// Subscribe counts workflow events published on bus.
func (m *Metrics) Subscribe(bus shared.EventSubscriber) error {
	if m == nil {
		return nil
	}
	if err := bus.Subscribe(shared.EventStepAdvanced, func(event shared.Event) error {
		if e, ok := event.(shared.StepAdvancedEvent); ok {
			m.StepTransitions.WithLabelValues(registration.Step(e.ToStep).Name()).Inc()
		}
		return nil
	}); err != nil {
		return err
	}
	if err := bus.Subscribe(shared.EventRegistrationCompleted, func(shared.Event) error {
		m.Completions.Inc()
		return nil
	}); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventGeoImportCompleted, func(event shared.Event) error {
		if e, ok := event.(shared.GeoImportCompletedEvent); ok {
			m.ObserveGeoImport(e.Countries, e.Cities, e.Skipped, e.Failed, e.OccurredAt())
		}
		return nil
	})
}
