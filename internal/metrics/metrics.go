package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "procwatch"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	checks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "check",
			Name:      "total",
			Help:      "Number of health checks by result.",
		}, []string{"target", "result"},
	)
	restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "restart",
			Name:      "total",
			Help:      "Number of restart attempts by outcome.",
		}, []string{"target", "outcome"},
	)
	processUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "target",
			Name:      "up",
			Help:      "Whether a process matching the target pattern was running (1) or not (0).",
		}, []string{"target"},
	)
	idleSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "target",
			Name:      "idle_seconds",
			Help:      "Seconds since the last activity log line. Absent when unknown.",
		}, []string{"target"},
	)
	healthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "target",
			Name:      "healthy",
			Help:      "Verdict of the last check (1 healthy, 0 unhealthy).",
		}, []string{"target"},
	)
	lastCheck = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "check",
			Name:      "last_timestamp_seconds",
			Help:      "Unix time of the last completed check.",
		}, []string{"target"},
	)
)

// Check result and restart outcome label values.
const (
	ResultHealthy   = "healthy"
	ResultUnhealthy = "unhealthy"
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times and with more than one registry.
func Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{checks, restarts, processUp, idleSeconds, healthy, lastCheck, targetCPU, targetRSS, targetThreads}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// HandlerFor serves metrics from g, typically the registry passed to Register.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Pass is what one check observed, flattened for metric updates.
type Pass struct {
	Target         string
	ProcessRunning bool
	HasActivity    bool
	Idle           time.Duration
	Healthy        bool
	Restarted      bool
	RestartOK      bool
	At             time.Time
}

// ObservePass records a completed check. It no-ops if Register hasn't been called.
func ObservePass(p Pass) {
	if !regOK.Load() {
		return
	}
	result := ResultUnhealthy
	if p.Healthy {
		result = ResultHealthy
	}
	checks.WithLabelValues(p.Target, result).Inc()
	processUp.WithLabelValues(p.Target).Set(boolFloat(p.ProcessRunning))
	healthy.WithLabelValues(p.Target).Set(boolFloat(p.Healthy))
	if p.HasActivity {
		idleSeconds.WithLabelValues(p.Target).Set(p.Idle.Seconds())
	} else {
		idleSeconds.DeleteLabelValues(p.Target)
	}
	if p.Restarted {
		outcome := OutcomeFailure
		if p.RestartOK {
			outcome = OutcomeSuccess
		}
		restarts.WithLabelValues(p.Target, outcome).Inc()
	}
	lastCheck.WithLabelValues(p.Target).Set(float64(p.At.Unix()))
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
