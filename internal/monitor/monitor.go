package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/procwatch/internal/activity"
	"github.com/loykin/procwatch/internal/config"
	"github.com/loykin/procwatch/internal/detector"
	"github.com/loykin/procwatch/internal/health"
	"github.com/loykin/procwatch/internal/history"
	"github.com/loykin/procwatch/internal/metrics"
	"github.com/loykin/procwatch/internal/process"
	"github.com/loykin/procwatch/internal/state"
)

// consoleTime is the timestamp prefix of the one-line pass summary.
const consoleTime = "2006-01-02 15:04:05"

// Restarter performs one restart attempt.
type Restarter interface {
	Restart(ctx context.Context) process.Outcome
}

// Report is everything one pass saw and did.
type Report struct {
	Target   string
	At       time.Time
	Signal   health.Signal
	Verdict  health.Verdict
	Action   string
	Outcome  *process.Outcome
	Status   state.Status
	Message  string
	ExitCode int
}

// Monitor runs single evaluate-and-react passes over one target.
// Passes are serialized; a Monitor may be shared by the HTTP surface.
type Monitor struct {
	name        string
	activityLog string
	maxIdle     time.Duration

	detector   detector.Detector
	matcher    process.Matcher
	restarter  Restarter
	terminator process.Terminator
	recorder   *state.Recorder
	pidFile    string

	sink           history.Sink
	historyTimeout time.Duration
	exporter       metrics.Exporter
	gatherer       prometheus.Gatherer
	sampleTarget   bool

	out    io.Writer
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last *Report
}

type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

// WithOutput sets where the console summary goes. Defaults to stdout.
func WithOutput(w io.Writer) Option { return func(m *Monitor) { m.out = w } }

func WithLogger(l *slog.Logger) Option { return func(m *Monitor) { m.logger = l } }

func WithDetector(d detector.Detector) Option { return func(m *Monitor) { m.detector = d } }

func WithRestarter(r Restarter) Option { return func(m *Monitor) { m.restarter = r } }

func WithTerminator(t process.Terminator) Option { return func(m *Monitor) { m.terminator = t } }

// WithHistory appends one event per pass to sink. The monitor owns the
// sink and closes it in Close.
func WithHistory(sink history.Sink, timeout time.Duration) Option {
	return func(m *Monitor) {
		m.sink = sink
		m.historyTimeout = timeout
	}
}

// WithMetrics samples target CPU/RSS each pass and ships g through e.
// g should be the registry metrics.Register was called with.
func WithMetrics(e metrics.Exporter, g prometheus.Gatherer) Option {
	return func(m *Monitor) {
		m.exporter = e
		m.gatherer = g
		m.sampleTarget = true
	}
}

// New wires the probes, actuator and recorder described by cfg. Options
// override individual collaborators, mostly for tests.
func New(cfg config.Config, opts ...Option) (*Monitor, error) {
	m := &Monitor{
		name:        cfg.Target.Name,
		activityLog: cfg.Target.ActivityLog,
		maxIdle:     cfg.Target.MaxIdle,
		pidFile:     cfg.Launch.PIDFile,
		out:         os.Stdout,
		now:         time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("target", m.name)
	if m.maxIdle <= 0 {
		m.maxIdle = health.DefaultMaxIdle
	}

	pd, err := detector.NewPatternDetector(cfg.Target.Pattern)
	if err != nil {
		return nil, fmt.Errorf("target pattern: %w", err)
	}
	m.matcher = pd
	if m.detector == nil {
		if m.detector, err = detector.New(cfg.Probe.Method, cfg.Target.Pattern); err != nil {
			return nil, err
		}
	}
	if m.terminator == nil {
		if cfg.Probe.Method == detector.MethodPgrep {
			m.terminator = process.PkillTerminator{Pattern: cfg.Target.Pattern}
		} else {
			m.terminator = process.PatternTerminator{Matcher: pd, Grace: cfg.Probe.KillGrace, Logger: m.logger}
		}
	}
	if m.restarter == nil {
		m.restarter = &process.Actuator{
			Terminator: m.terminator,
			Strategies: Strategies(cfg),
			PIDFile:    cfg.Launch.PIDFile,
			Logger:     m.logger,
		}
	}
	m.recorder = state.NewRecorder(cfg.State.File, m.logger)
	return m, nil
}

// Strategies builds the launch fallback chain: the launch script, then the
// first candidate entry script.
func Strategies(cfg config.Config) []process.Strategy {
	var ss []process.Strategy
	if cfg.Launch.Script != "" {
		ss = append(ss, process.ScriptStrategy{
			Path:    cfg.Launch.Script,
			Shell:   cfg.Launch.Shell,
			Args:    cfg.Launch.ScriptArgs,
			WorkDir: cfg.Target.WorkDir,
		})
	}
	if len(cfg.Launch.Candidates) > 0 {
		ss = append(ss, process.CandidateStrategy{
			WorkDir:     cfg.Target.WorkDir,
			Patterns:    cfg.Launch.Candidates,
			Interpreter: cfg.Launch.Interpreter,
			PathVar:     cfg.Launch.PathEnvVar,
		})
	}
	return ss
}

func (m *Monitor) Name() string { return m.name }

// Recorder exposes the status file for read-only callers.
func (m *Monitor) Recorder() *state.Recorder { return m.recorder }

// PIDFile is where the last launched child's PID is recorded.
func (m *Monitor) PIDFile() string { return m.pidFile }

// History returns the configured sink, or nil.
func (m *Monitor) History() history.Sink { return m.sink }

// Last returns the report of the most recent pass in this process.
func (m *Monitor) Last() (Report, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Report{}, false
	}
	return *m.last, true
}

// Run performs one pass: probe, evaluate, restart when unhealthy, record.
func (m *Monitor) Run(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	sig := health.Signal{ProcessRunning: detector.IsRunning(m.detector, m.logger)}
	sig.LastActivity, sig.HasActivity = activity.LastActivity(m.activityLog)
	v := health.Evaluate(sig, now, m.maxIdle)

	r := Report{Target: m.name, At: now, Signal: sig, Verdict: v, Action: history.ActionNone}
	stamp := now.Format(consoleTime)

	if v.Healthy {
		r.Status = state.StatusRunning
		m.printf("[%s] %s %s\n", stamp, m.name, v.Reason)
		m.logger.Debug("target healthy", "idle", v.Idle)
	} else {
		m.printf("[%s] %s unhealthy: %s\n", stamp, m.name, v.Reason)
		m.logger.Warn("target unhealthy, restarting", "reason", v.Reason, "process_running", sig.ProcessRunning)

		out := m.restarter.Restart(ctx)
		r.Action = history.ActionRestart
		r.Outcome = &out
		if out.Succeeded {
			r.Status = state.StatusRunning
			r.Message = fmt.Sprintf("Restarted at %s: %s", now.UTC().Format(time.RFC3339), v.Reason)
			m.printf("restart ok: %s\n", out.Message)
		} else {
			r.Status = state.StatusError
			r.Message = out.Message
			r.ExitCode = 1
			m.printf("restart failed: %s\n", out.Message)
			m.logger.Error("restart failed", "message", out.Message)
		}
	}

	m.recorder.Record(r.Status, r.Message, now)
	m.export(ctx, r)
	m.last = &r
	return r
}

// Stop terminates the target and records it as deliberately stopped.
func (m *Monitor) Stop(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := m.terminator.Terminate(ctx)
	r := Report{
		Target:  m.name,
		At:      now,
		Action:  history.ActionStop,
		Status:  state.StatusStopped,
		Message: fmt.Sprintf("Stopped by operator at %s", now.UTC().Format(time.RFC3339)),
		Outcome: &process.Outcome{Succeeded: true, Terminated: n},
	}
	r.Outcome.Message = fmt.Sprintf("signalled %d process(es)", n)
	m.printf("[%s] %s stopped: %s\n", now.Format(consoleTime), m.name, r.Outcome.Message)
	m.logger.Info("target stopped", "signalled", n)

	m.recorder.Record(r.Status, r.Message, now)
	m.export(ctx, r)
	m.last = &r
	return r
}

// Close releases the history sink.
func (m *Monitor) Close() error {
	if m.sink != nil {
		return m.sink.Close()
	}
	return nil
}

func (m *Monitor) printf(format string, args ...any) {
	if m.out != nil {
		_, _ = fmt.Fprintf(m.out, format, args...)
	}
}
