package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/loykin/procwatch/internal/config"
	"github.com/loykin/procwatch/internal/history/factory"
	"github.com/loykin/procwatch/internal/metrics"
	"github.com/loykin/procwatch/internal/monitor"
)

// session is everything one command invocation needs: the loaded config,
// the process-wide logger and a wired monitor.
type session struct {
	cfg      config.Config
	logger   *slog.Logger
	mon      *monitor.Monitor
	registry *prometheus.Registry
	closers  []io.Closer
}

// newSession loads configuration and wires the monitor. Only configuration
// errors are fatal; an unreachable history backend is logged and skipped.
func newSession(configPath string, out io.Writer, tweak func(*config.Config)) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if tweak != nil {
		tweak(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger, logCloser := cfg.Log.NewSlogger()
	slog.SetDefault(logger)
	s := &session{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(s.registry); err != nil {
		logger.Warn("failed to register metrics", "error", err)
	}

	opts := []monitor.Option{
		monitor.WithOutput(out),
		monitor.WithLogger(logger),
		monitor.WithMetrics(metrics.Exporter{
			Textfile:       cfg.Metrics.Textfile,
			PushgatewayURL: cfg.Metrics.PushgatewayURL,
			Job:            cfg.Metrics.Job,
			Timeout:        cfg.Metrics.Timeout,
		}, s.registry),
	}
	if cfg.History.Enabled {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			logger.Warn("history sink unavailable, continuing without it", "error", err)
		} else {
			opts = append(opts, monitor.WithHistory(sink, cfg.History.Timeout))
		}
	}

	mon, err := monitor.New(cfg, opts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.mon = mon
	return s, nil
}

func (s *session) metricsHandler() http.Handler { return metrics.HandlerFor(s.registry) }

// Close releases the history sink and the log file.
func (s *session) Close() error {
	var errs []error
	if s.mon != nil {
		errs = append(errs, s.mon.Close())
	}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
