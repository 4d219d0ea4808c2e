package procwatch

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/procwatch/internal/activity"
	cfg "github.com/loykin/procwatch/internal/config"
	"github.com/loykin/procwatch/internal/health"
	"github.com/loykin/procwatch/internal/history"
	"github.com/loykin/procwatch/internal/history/factory"
	"github.com/loykin/procwatch/internal/metrics"
	"github.com/loykin/procwatch/internal/monitor"
	"github.com/loykin/procwatch/internal/server"
	"github.com/loykin/procwatch/internal/state"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Report = monitor.Report

type Option = monitor.Option

type Signal = health.Signal

type Verdict = health.Verdict

type Status = state.Status

type HistorySink = history.Sink

type HistoryEvent = history.Event

const (
	StatusRunning = state.StatusRunning
	StatusError   = state.StatusError
	StatusStopped = state.StatusStopped
)

var (
	WithClock   = monitor.WithClock
	WithOutput  = monitor.WithOutput
	WithLogger  = monitor.WithLogger
	WithHistory = monitor.WithHistory
)

// Monitor is a thin facade over internal/monitor.Monitor.
// It provides a stable public API for embedding.
type Monitor struct{ inner *monitor.Monitor }

func New(c Config, opts ...Option) (*Monitor, error) {
	m, err := monitor.New(c, opts...)
	if err != nil {
		return nil, err
	}
	return &Monitor{inner: m}, nil
}

func (m *Monitor) Check(ctx context.Context) Report { return m.inner.Run(ctx) }
func (m *Monitor) Stop(ctx context.Context) Report  { return m.inner.Stop(ctx) }
func (m *Monitor) Last() (Report, bool)             { return m.inner.Last() }
func (m *Monitor) Close() error                     { return m.inner.Close() }

// LoadConfig reads a TOML config (path may be empty for defaults).
func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// Evaluate is the pure health rule used by every pass.
func Evaluate(sig Signal, now time.Time, maxIdle time.Duration) Verdict {
	return health.Evaluate(sig, now, maxIdle)
}

// LastActivity returns the timestamp of the last line of an activity log.
func LastActivity(path string) (time.Time, bool) { return activity.LastActivity(path) }

// NewHistorySink opens a history backend from a DSN, see history/factory.
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer serves m on addr. Call ListenAndServe on the result.
func NewHTTPServer(addr, basePath string, m *Monitor, g prometheus.Gatherer) *http.Server {
	var mh http.Handler
	if g != nil {
		mh = metrics.HandlerFor(g)
	}
	return server.NewServer(addr, server.NewRouter(m.inner, mh, basePath))
}

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
