// Package metrics exposes the Mirror Control Container's Prometheus
// instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mirror-control/mcc/internal/mirror"
)

// Metrics records session transactions, telemetry and events.
type Metrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	events      *prometheus.CounterVec
	temperature *prometheus.GaugeVec
	current     *prometheus.GaugeVec
	locked      prometheus.Gauge
	connected   prometheus.Gauge
	monitoring  prometheus.Gauge
	pollSkipped prometheus.Counter
	dropped     prometheus.Counter
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcc_operations_total",
			Help: "Session operations by action and outcome code.",
		}, []string{"action", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcc_operation_duration_seconds",
			Help:    "Session operation latency, hardware transactions included.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"action"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcc_events_total",
			Help: "Monitoring events by type.",
		}, []string{"type"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcc_temperature_celsius",
			Help: "Last polled temperature by sensor.",
		}, []string{"sensor"}),
		current: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcc_coils_current_amperes",
			Help: "Last polled coil current by polarity.",
		}, []string{"coils"}),
		locked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcc_device_locked",
			Help: "1 while the device is in protection.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcc_device_connected",
			Help: "1 while the device answers.",
		}),
		monitoring: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcc_monitoring_enabled",
			Help: "1 while the monitoring loop runs.",
		}),
		pollSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcc_poll_skipped_total",
			Help: "Monitoring cycles skipped because a foreground transaction held the device.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcc_events_dropped_total",
			Help: "Events lost to event queue backpressure.",
		}),
	}

	reg.MustRegister(
		m.operations, m.latency, m.events,
		m.temperature, m.current,
		m.locked, m.connected, m.monitoring,
		m.pollSkipped, m.dropped,
	)
	return m
}

// ObserveTransaction counts one session operation.
func (m *Metrics) ObserveTransaction(action string, err error, latency time.Duration) {
	code := "OK"
	if err != nil {
		code = codeOf(err)
	}
	m.operations.WithLabelValues(action, code).Inc()
	m.latency.WithLabelValues(action).Observe(latency.Seconds())
}

// ObserveTelemetry records one successful poll.
func (m *Metrics) ObserveTelemetry(s mirror.Snapshot) {
	m.temperature.WithLabelValues("mirror").Set(s.MirrorTemperature)
	m.temperature.WithLabelValues("power_supply").Set(s.PowerSupplyTemperature)
	m.current.WithLabelValues("positive").Set(s.PositiveCoilsCurrent)
	m.current.WithLabelValues("negative").Set(s.NegativeCoilsCurrent)
	m.locked.Set(boolValue(s.Locked))
	m.connected.Set(boolValue(s.Connected))
}

// PollSkipped counts a skipped monitoring cycle.
func (m *Metrics) PollSkipped() {
	m.pollSkipped.Inc()
}

// EventDropped counts an event lost to a full queue.
func (m *Metrics) EventDropped() {
	m.dropped.Inc()
}

// HandleEvent counts ev and tracks the state gauges it implies.
func (m *Metrics) HandleEvent(ev mirror.Event) {
	m.events.WithLabelValues(ev.Type.String()).Inc()
	switch ev.Type {
	case mirror.EventLocked:
		m.locked.Set(1)
	case mirror.EventUnlocked:
		m.locked.Set(0)
	case mirror.EventConnectionLost:
		m.connected.Set(0)
	case mirror.EventConnectionRecovered:
		m.connected.Set(1)
	case mirror.EventMonitoringStarted:
		m.monitoring.Set(1)
	case mirror.EventMonitoringStopped:
		m.monitoring.Set(0)
	}
}

// codeOf names the error kind of err; unrecognized errors count as UNKNOWN.
func codeOf(err error) string {
	return mirror.ErrorForStatus(mirror.StatusOf(err)).Error()
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
