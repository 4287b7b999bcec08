package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fxchange",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fxchange",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fxchange",
			Subsystem: "session",
			Name:      "active",
			Help:      "Currently connected sessions.",
		},
	)
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fxchange",
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Closed sessions by close reason.",
		},
		[]string{"reason"},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fxchange",
			Subsystem: "session",
			Name:      "commands_total",
			Help:      "Dispatched commands by verb and outcome.",
		},
		[]string{"verb", "outcome"},
	)
	authAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fxchange",
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Authentication attempts by result.",
		},
		[]string{"result"},
	)
	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fxchange",
			Subsystem: "transfer",
			Name:      "total",
			Help:      "File transfers by direction and outcome.",
		},
		[]string{"direction", "outcome"},
	)
	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fxchange",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "File content bytes moved by direction.",
		},
		[]string{"direction"},
	)
	transferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fxchange",
			Subsystem: "transfer",
			Name:      "duration_seconds",
			Help:      "File transfer duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"direction", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			sessionsActive, sessionsTotal, commands, authAttempts,
			transfers, transferBytes, transferDuration,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func SessionOpened() {
	RegisterMetrics()
	sessionsActive.Inc()
}

func SessionClosed(reason string) {
	RegisterMetrics()
	sessionsActive.Dec()
	sessionsTotal.WithLabelValues(reason).Inc()
}

func RecordCommand(verb, outcome string) {
	RegisterMetrics()
	commands.WithLabelValues(verb, outcome).Inc()
}

func RecordAuth(success bool) {
	RegisterMetrics()
	result := "fail"
	if success {
		result = "success"
	}
	authAttempts.WithLabelValues(result).Inc()
}

func RecordTransfer(direction, outcome string, bytes int64, duration time.Duration) {
	RegisterMetrics()
	transfers.WithLabelValues(direction, outcome).Inc()
	if bytes > 0 {
		transferBytes.WithLabelValues(direction).Add(float64(bytes))
	}
	transferDuration.WithLabelValues(direction, outcome).Observe(duration.Seconds())
}
