package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the delivery engine
type Metrics struct {
	// Store metrics
	notificationsCreated *prometheus.CounterVec

	// Admission metrics
	admissionDecisions *prometheus.CounterVec

	// Dispatch metrics
	channelDispatches *prometheus.CounterVec
	channelFailures   *prometheus.CounterVec

	// Alert metrics
	activeAlerts prometheus.Gauge

	// Ingestion metrics
	eventsIngested   *prometheus.CounterVec
	eventsUnknown    prometheus.Counter
	eventsMalformed  prometheus.Counter
	streamReconnects prometheus.Counter
}

// New creates and registers all engine metrics on the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		notificationsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_notifications_created_total",
				Help: "Notifications created, by category",
			},
			[]string{"category"},
		),
		admissionDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_admission_decisions_total",
				Help: "Rate limiter admission decisions, by decision and reason",
			},
			[]string{"decision", "reason"},
		),
		channelDispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_channel_dispatches_total",
				Help: "Successful channel deliveries, by channel",
			},
			[]string{"channel"},
		),
		channelFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_channel_failures_total",
				Help: "Failed channel deliveries, by channel",
			},
			[]string{"channel"},
		),
		activeAlerts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "notify_active_alerts",
				Help: "Transient alerts currently visible",
			},
		),
		eventsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_events_ingested_total",
				Help: "Inbound events mapped to notifications, by event type",
			},
			[]string{"event_type"},
		),
		eventsUnknown: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "notify_events_unknown_total",
				Help: "Inbound events with an unrecognized type",
			},
		),
		eventsMalformed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "notify_events_malformed_total",
				Help: "Inbound events dropped as malformed",
			},
		),
		streamReconnects: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "notify_stream_reconnects_total",
				Help: "Event stream reconnect attempts",
			},
		),
	}
}

// NotificationCreated records a stored notification
func (m *Metrics) NotificationCreated(category string) {
	m.notificationsCreated.WithLabelValues(category).Inc()
}

// AdmissionDecision records a rate limiter outcome
func (m *Metrics) AdmissionDecision(decision, reason string) {
	if reason == "" {
		reason = "none"
	}
	m.admissionDecisions.WithLabelValues(decision, reason).Inc()
}

// ChannelDispatched records a successful delivery
func (m *Metrics) ChannelDispatched(channel string) {
	m.channelDispatches.WithLabelValues(channel).Inc()
}

// ChannelFailed records a failed delivery
func (m *Metrics) ChannelFailed(channel string) {
	m.channelFailures.WithLabelValues(channel).Inc()
}

// SetActiveAlerts records the number of currently visible alerts
func (m *Metrics) SetActiveAlerts(n int) {
	m.activeAlerts.Set(float64(n))
}

// EventIngested records a successfully mapped inbound event
func (m *Metrics) EventIngested(eventType string) {
	m.eventsIngested.WithLabelValues(eventType).Inc()
}

// EventUnknown records an inbound event with an unknown type
func (m *Metrics) EventUnknown() {
	m.eventsUnknown.Inc()
}

// EventMalformed records a dropped malformed event
func (m *Metrics) EventMalformed() {
	m.eventsMalformed.Inc()
}

// StreamReconnect records an event stream reconnect attempt
func (m *Metrics) StreamReconnect() {
	m.streamReconnects.Inc()
}
