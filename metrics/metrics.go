package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace         = "hsm_http_gw"
	stateSubsystem    = "state"
	transferSubsystem = "transfer"
	adminSubsystem    = "admin"
)

type GateMetrics struct {
	stateMetrics
	transferMetrics
	adminMetrics
}

type stateMetrics struct {
	healthCheck prometheus.Gauge
}

type transferMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

type adminMetrics struct {
	commands *prometheus.CounterVec
}

// NewGateMetrics creates new metrics for http gate and registers them in reg.
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	m := &GateMetrics{
		stateMetrics:    newStateMetrics(),
		transferMetrics: newTransferMetrics(),
		adminMetrics:    newAdminMetrics(),
	}

	reg.MustRegister(
		m.healthCheck,
		m.requests,
		m.duration,
		m.bytes,
		m.commands,
	)

	return m
}

func newStateMetrics() stateMetrics {
	return stateMetrics{
		healthCheck: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: stateSubsystem,
			Name:      "health",
			Help:      "Current HTTP gateway state",
		}),
	}
}

func newTransferMetrics() transferMetrics {
	return transferMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: transferSubsystem,
			Name:      "requests_total",
			Help:      "Transfers by operation and result code",
		}, []string{"op", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: transferSubsystem,
			Name:      "duration_seconds",
			Help:      "Transfer duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"op"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: transferSubsystem,
			Name:      "bytes_total",
			Help:      "Bytes moved by successful transfers",
		}, []string{"op"}),
	}
}

func newAdminMetrics() adminMetrics {
	return adminMetrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: adminSubsystem,
			Name:      "commands_total",
			Help:      "Object and administration commands by result code",
		}, []string{"command", "code"}),
	}
}

func (m stateMetrics) SetHealth(s int32) {
	m.healthCheck.Set(float64(s))
}

// code labels an outcome with its errno, "0" on success.
func code(err error) string {
	if err == nil {
		return "0"
	}

	var ioErr *hsmerr.IOError
	if errors.As(err, &ioErr) {
		return strconv.Itoa(int(ioErr.Code))
	}

	return strconv.Itoa(int(hsmerr.Code(err)))
}

// ObserveTransfer accounts for one transfer batch.
func (m transferMetrics) ObserveTransfer(op string, err error, elapsed time.Duration, size int64) {
	m.requests.WithLabelValues(op, code(err)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	if err == nil && size > 0 {
		m.bytes.WithLabelValues(op).Add(float64(size))
	}
}

// ObserveCommand accounts for one object or administration command.
func (m adminMetrics) ObserveCommand(command string, err error) {
	m.commands.WithLabelValues(command, code(err)).Inc()
}
