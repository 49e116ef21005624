package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the kiosk daemon.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	startsTotal         prometheus.Counter
	engineInitErrors    prometheus.Counter
	idleRestartsTotal   prometheus.Counter
	eventsDroppedTotal  prometheus.Counter
	eventsStaleTotal    prometheus.Counter
	playbackEventsTotal *prometheus.CounterVec
	reconnectsTotal     *prometheus.CounterVec
	playbackErrorsTotal *prometheus.CounterVec
	hostSignalsTotal    *prometheus.CounterVec
	sessionActive       prometheus.Gauge
	phase               *prometheus.GaugeVec
}

// New creates and registers Prometheus metrics for the kiosk.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	startsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_stream_starts_total",
		Help: "Total number of play requests issued to the engine",
	})
	engineInitErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_engine_init_errors_total",
		Help: "Total number of failed engine initializations",
	})
	idleRestartsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_idle_timer_restarts_total",
		Help: "Total number of idle timer restarts",
	})
	eventsDroppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_playback_events_dropped_total",
		Help: "Engine events dropped because the event queue was full",
	})
	eventsStaleTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_playback_events_stale_total",
		Help: "Engine events discarded because their session was torn down",
	})
	playbackEventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_playback_events_total",
		Help: "Engine events handled by the stream controller",
	}, []string{"type"})
	reconnectsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_reconnects_total",
		Help: "Reconnects issued by the stream controller",
	}, []string{"reason"})
	playbackErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_playback_errors_total",
		Help: "Engine error events by category",
	}, []string{"category"})
	hostSignalsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_host_signals_total",
		Help: "Host lifecycle signals handled",
	}, []string{"signal"})
	sessionActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kiosk_session_active",
		Help: "1 while a playback session is live",
	})
	phase := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kiosk_stream_phase",
		Help: "1 for the current stream phase, 0 otherwise",
	}, []string{"phase"})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		startsTotal,
		engineInitErrors,
		idleRestartsTotal,
		eventsDroppedTotal,
		eventsStaleTotal,
		playbackEventsTotal,
		reconnectsTotal,
		playbackErrorsTotal,
		hostSignalsTotal,
		sessionActive,
		phase,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		startsTotal:         startsTotal,
		engineInitErrors:    engineInitErrors,
		idleRestartsTotal:   idleRestartsTotal,
		eventsDroppedTotal:  eventsDroppedTotal,
		eventsStaleTotal:    eventsStaleTotal,
		playbackEventsTotal: playbackEventsTotal,
		reconnectsTotal:     reconnectsTotal,
		playbackErrorsTotal: playbackErrorsTotal,
		hostSignalsTotal:    hostSignalsTotal,
		sessionActive:       sessionActive,
		phase:               phase,
	}
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncStarts increments the play request counter.
func (m *Metrics) IncStarts() {
	m.startsTotal.Inc()
}

// IncEngineInitErrors increments the failed initialization counter.
func (m *Metrics) IncEngineInitErrors() {
	m.engineInitErrors.Inc()
}

// IncIdleRestarts increments the idle timer restart counter.
func (m *Metrics) IncIdleRestarts() {
	m.idleRestartsTotal.Inc()
}

// IncEventsDropped increments the dropped engine event counter.
func (m *Metrics) IncEventsDropped() {
	m.eventsDroppedTotal.Inc()
}

// IncEventsStale increments the stale engine event counter.
func (m *Metrics) IncEventsStale() {
	m.eventsStaleTotal.Inc()
}

// IncPlaybackEvent counts one handled engine event of the given type.
func (m *Metrics) IncPlaybackEvent(eventType string) {
	m.playbackEventsTotal.WithLabelValues(eventType).Inc()
}

// IncReconnects counts one reconnect triggered by reason.
func (m *Metrics) IncReconnects(reason string) {
	m.reconnectsTotal.WithLabelValues(reason).Inc()
}

// IncPlaybackErrors counts one engine error of the given category.
func (m *Metrics) IncPlaybackErrors(category string) {
	m.playbackErrorsTotal.WithLabelValues(category).Inc()
}

// IncHostSignals counts one host lifecycle signal.
func (m *Metrics) IncHostSignals(signal string) {
	m.hostSignalsTotal.WithLabelValues(signal).Inc()
}

// SetSessionActive sets the session gauge.
func (m *Metrics) SetSessionActive(active bool) {
	if active {
		m.sessionActive.Set(1)
		return
	}
	m.sessionActive.Set(0)
}

// SetPhase marks current as the only active phase among all.
func (m *Metrics) SetPhase(current string, all []string) {
	for _, p := range all {
		v := 0.0
		if p == current {
			v = 1
		}
		m.phase.WithLabelValues(p).Set(v)
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. session state).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
