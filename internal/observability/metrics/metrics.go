package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "monitoring_"

	resultSuccess  = "success"
	resultError    = "error"
	resultRejected = "rejected"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	eventsTotal      *prometheus.CounterVec
	eventTransitions *prometheus.CounterVec

	notificationsTotal *prometheus.CounterVec
	idempotentHits     prometheus.Counter
	deliveriesTotal    *prometheus.CounterVec
	dispatchLatency    prometheus.Histogram

	streamSubscribers prometheus.Gauge
	broadcastDropped  prometheus.Counter

	mqttMessages *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers collectors once. db may be nil, in which case the
// DB-backed gauges are skipped.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total measurement ingests by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Measurement ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		eventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_total",
				Help: "Monitoring events raised by severity",
			},
			[]string{"severity"},
		)
		eventTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "event_transitions_total",
				Help: "Monitoring event lifecycle transitions",
			},
			[]string{"transition"},
		)

		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Dispatched notifications by aggregate status",
			},
			[]string{"status"},
		)
		idempotentHits = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "notification_idempotent_hits_total",
				Help: "Dispatch requests answered with an existing notification",
			},
		)
		deliveriesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "deliveries_total",
				Help: "Channel delivery attempts by channel and status",
			},
			[]string{"channel", "status"},
		)
		dispatchLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "dispatch_latency_seconds",
				Help:    "Notification dispatch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		streamSubscribers = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "stream_subscribers",
				Help: "Open live notification streams",
			},
		)
		broadcastDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "broadcast_dropped_total",
				Help: "Live events dropped because a stream could not accept them",
			},
		)

		mqttMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mqtt_messages_total",
				Help: "MQTT vitals messages by result",
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Event history exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Event history export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestLatency,
			eventsTotal,
			eventTransitions,
			notificationsTotal,
			idempotentHits,
			deliveriesTotal,
			dispatchLatency,
			streamSubscribers,
			broadcastDropped,
			mqttMessages,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncEvent counts a raised monitoring event.
func IncEvent(severity string) {
	if severity == "" {
		severity = "unknown"
	}
	if eventsTotal != nil {
		eventsTotal.WithLabelValues(severity).Inc()
	}
}

// IncEventTransition counts an acknowledge or resolve.
func IncEventTransition(transition string) {
	if transition == "" {
		transition = "unknown"
	}
	if eventTransitions != nil {
		eventTransitions.WithLabelValues(transition).Inc()
	}
}

// ObserveDispatch records a completed dispatch pass.
func ObserveDispatch(status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(status).Inc()
	}
	if dispatchLatency != nil {
		dispatchLatency.Observe(duration.Seconds())
	}
}

// IncIdempotentHit counts a dispatch answered by an existing notification.
func IncIdempotentHit() {
	if idempotentHits != nil {
		idempotentHits.Inc()
	}
}

// IncDelivery counts one channel attempt outcome.
func IncDelivery(channel, status string) {
	if channel == "" {
		channel = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	if deliveriesTotal != nil {
		deliveriesTotal.WithLabelValues(channel, status).Inc()
	}
}

// AddStreamSubscribers adjusts the open stream gauge.
func AddStreamSubscribers(delta int) {
	if streamSubscribers != nil {
		streamSubscribers.Add(float64(delta))
	}
}

// IncBroadcastDropped counts a live event that could not be handed to a stream.
func IncBroadcastDropped() {
	if broadcastDropped != nil {
		broadcastDropped.Inc()
	}
}

// IncMQTTMessage counts a consumed MQTT message.
func IncMQTTMessage(result string) {
	if result == "" {
		result = resultSuccess
	}
	if mqttMessages != nil {
		mqttMessages.WithLabelValues(result).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultRejected = resultRejected
)
