// v0
// metrics.go
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the controller's prometheus instruments. Each instance
// owns its registry so tests can build throwaway copies without colliding
// on the global registry.
type Metrics struct {
	reg *prometheus.Registry

	ticksTotal       prometheus.Counter
	commandsTotal    *prometheus.CounterVec
	commFailures     *prometheus.CounterVec
	commandsRejected prometheus.Counter
	activeAlarms     *prometheus.GaugeVec
	reactorState     *prometheus.GaugeVec
	breakerState     *prometheus.GaugeVec
	mappingErrors    *prometheus.CounterVec
	telemetryErrors  prometheus.Counter
	httpRequests     *prometheus.CounterVec
}

// NewMetrics builds and registers all instruments.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "phreg_ticks_total",
			Help: "Total control ticks executed.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phreg_actuator_commands_total",
			Help: "Actuator commands issued per reactor and gas channel.",
		}, []string{"reactor", "channel"}),
		commFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phreg_actuator_comm_failures_total",
			Help: "Actuator write failures after bounded retries, per reactor.",
		}, []string{"reactor"}),
		commandsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "phreg_runtime_commands_rejected_total",
			Help: "Operator commands rejected by validation.",
		}),
		activeAlarms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "phreg_alarm_active",
			Help: "Alarm level per reactor and kind (1 raised, 0 clear).",
		}, []string{"reactor", "kind"}),
		reactorState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "phreg_reactor_state",
			Help: "Reactor state (0 INIT, 1 RUN, 2 DEGRADED, 3 FAILSAFE).",
		}, []string{"reactor"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cb_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"target"}),
		mappingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phreg_channel_mapping_errors_total",
			Help: "Transmitter channel mapping problems seen during ingest.",
		}, []string{"reactor"}),
		telemetryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "phreg_telemetry_publish_errors_total",
			Help: "Snapshot publish failures (best-effort path).",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
	}

	m.reg.MustRegister(
		m.ticksTotal,
		m.commandsTotal,
		m.commFailures,
		m.commandsRejected,
		m.activeAlarms,
		m.reactorState,
		m.breakerState,
		m.mappingErrors,
		m.telemetryErrors,
		m.httpRequests,
	)
	return m
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) TickCompleted() { m.ticksTotal.Inc() }

func (m *Metrics) CommandIssued(reactor, channel string) {
	m.commandsTotal.WithLabelValues(reactor, channel).Inc()
}

func (m *Metrics) CommFailure(reactor string) {
	m.commFailures.WithLabelValues(reactor).Inc()
}

func (m *Metrics) CommandRejected() { m.commandsRejected.Inc() }

func (m *Metrics) SetAlarm(reactor, kind string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.activeAlarms.WithLabelValues(reactor, kind).Set(v)
}

func (m *Metrics) SetReactorState(reactor string, state int) {
	m.reactorState.WithLabelValues(reactor).Set(float64(state))
}

func (m *Metrics) SetBreakerState(target string, state int) {
	m.breakerState.WithLabelValues(target).Set(float64(state))
}

func (m *Metrics) MappingError(reactor string) {
	m.mappingErrors.WithLabelValues(reactor).Inc()
}

func (m *Metrics) TelemetryError() { m.telemetryErrors.Inc() }

func (m *Metrics) HTTPRequest(route string, status int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
