package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk portal.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	guardDecisions  *prometheus.CounterVec
	overlayEvents   *prometheus.CounterVec
	timeoutEvents   *prometheus.CounterVec
	activeMonitors  prometheus.Gauge
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_guard_decisions_total",
		Help: "Route guard outcomes.",
	}, []string{"outcome"})
	overlays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_overlay_events_total",
		Help: "Role simulation and impersonation starts and stops.",
	}, []string{"overlay", "action"})
	timeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_session_timeout_events_total",
		Help: "Idle monitor transitions: warning, extend, expired, reauth_required.",
	}, []string{"event"})
	monitors := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portal_session_monitors_active",
		Help: "Idle monitors currently ticking.",
	})
	registry.MustRegister(requests, duration, decisions, overlays, timeouts, monitors)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		guardDecisions:  decisions,
		overlayEvents:   overlays,
		timeoutEvents:   timeouts,
		activeMonitors:  monitors,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RecordGuardDecision counts one guard evaluation.
func (m *Metrics) RecordGuardDecision(outcome string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(outcome).Inc()
}

// RecordOverlay counts an overlay start or stop.
func (m *Metrics) RecordOverlay(overlay, action string) {
	if m == nil {
		return
	}
	m.overlayEvents.WithLabelValues(overlay, action).Inc()
}

// RecordTimeoutEvent counts an idle monitor transition.
func (m *Metrics) RecordTimeoutEvent(event string) {
	if m == nil {
		return
	}
	m.timeoutEvents.WithLabelValues(event).Inc()
}

// MonitorStarted and MonitorStopped track the number of ticking monitors.
func (m *Metrics) MonitorStarted() {
	if m == nil {
		return
	}
	m.activeMonitors.Inc()
}

func (m *Metrics) MonitorStopped() {
	if m == nil {
		return
	}
	m.activeMonitors.Dec()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader on /session/timeout/ws.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("observability: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
