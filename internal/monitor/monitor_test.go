package monitor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/procwatch/internal/config"
	"github.com/loykin/procwatch/internal/health"
	"github.com/loykin/procwatch/internal/history"
	"github.com/loykin/procwatch/internal/process"
	"github.com/loykin/procwatch/internal/state"
)

var fixedNow = time.Date(2026, 2, 13, 5, 41, 13, 0, time.UTC)

type fakeDetector struct {
	alive bool
	err   error
}

func (f fakeDetector) Alive() (bool, error) { return f.alive, f.err }
func (f fakeDetector) Describe() string     { return "fake" }

type countingTerminator struct{ calls int }

func (c *countingTerminator) Terminate(context.Context) int {
	c.calls++
	return 1
}

type memorySink struct {
	mu     sync.Mutex
	events []history.Event
	err    error
	closed bool
}

func (s *memorySink) Send(_ context.Context, e history.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *memorySink) Close() error {
	s.closed = true
	return nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Target: config.TargetConfig{
			Name:        "bot",
			Pattern:     "procwatch-monitor-test-target",
			WorkDir:     dir,
			ActivityLog: filepath.Join(dir, "trading_bot.log"),
			MaxIdle:     health.DefaultMaxIdle,
		},
		Launch: config.LaunchConfig{
			Script:      filepath.Join(dir, "run.sh"),
			Shell:       "sh",
			ScriptArgs:  []string{"aggressive", "--paper"},
			Candidates:  []string{"trading_bot.py", "bot.py", "main.py", "hyperliquid*.py"},
			Interpreter: "true",
			PathEnvVar:  "PYTHONPATH",
			PIDFile:     filepath.Join(dir, ".bot.pid"),
		},
		State: config.StateConfig{File: filepath.Join(dir, "bot_state.json")},
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// logLine renders a log line stamped at ts in UTC+8.
func logLine(ts time.Time, msg string) string {
	return ts.In(time.FixedZone("UTC+8", 8*3600)).Format("2006-01-02 15:04:05") + " (UTC+8) - " + msg + "\n"
}

func newMonitor(t *testing.T, cfg config.Config, alive bool, extra ...Option) (*Monitor, *bytes.Buffer, *countingTerminator) {
	t.Helper()
	var out bytes.Buffer
	term := &countingTerminator{}
	opts := append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithOutput(&out),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithDetector(fakeDetector{alive: alive}),
		WithTerminator(term),
	}, extra...)
	m, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return m, &out, term
}

func loadState(t *testing.T, cfg config.Config) state.Record {
	t.Helper()
	rec, err := state.NewRecorder(cfg.State.File, nil).Load()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	return rec
}

func TestRun_NotRunningRestartsViaScript(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.Launch.Script, "exit 0\n")
	m, out, term := newMonitor(t, cfg, false)

	r := m.Run(context.Background())

	if r.ExitCode != 0 || r.Outcome == nil || !r.Outcome.Succeeded {
		t.Fatalf("expected successful restart, got %+v", r)
	}
	if r.Outcome.Strategy != "script:run.sh" {
		t.Fatalf("strategy=%q", r.Outcome.Strategy)
	}
	if term.calls != 1 {
		t.Fatalf("expected one terminate call, got %d", term.calls)
	}
	rec := loadState(t, cfg)
	if rec.Status != state.StatusRunning || !strings.Contains(rec.LastMessage, "Restarted at") {
		t.Fatalf("unexpected state %+v", rec)
	}
	if !strings.HasSuffix(rec.LastMessage, ": process not running") {
		t.Fatalf("message should carry the reason: %q", rec.LastMessage)
	}
	if !strings.Contains(out.String(), "bot unhealthy: process not running") || !strings.Contains(out.String(), "restart ok: ") {
		t.Fatalf("console=%q", out.String())
	}
	if _, err := os.Stat(cfg.Launch.PIDFile); err != nil {
		t.Fatalf("pid file not written: %v", err)
	}
}

func TestRun_IdleTooLongRestarts(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.Launch.Script, "exit 0\n")
	writeFile(t, cfg.Target.ActivityLog, logLine(fixedNow.Add(-20*time.Minute), "waiting"))
	m, _, _ := newMonitor(t, cfg, true)

	r := m.Run(context.Background())

	if r.Verdict.Healthy || !strings.Contains(r.Verdict.Reason, "20.0 minutes") {
		t.Fatalf("verdict=%+v", r.Verdict)
	}
	if r.Action != history.ActionRestart || r.Outcome == nil {
		t.Fatalf("expected a restart attempt, got %+v", r)
	}
	if r.ExitCode != 0 {
		t.Fatalf("exit=%d", r.ExitCode)
	}
}

func TestRun_RecentActivityIsHealthy(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.Target.ActivityLog, logLine(fixedNow.Add(-5*time.Minute), "scanning"))
	writeFile(t, cfg.State.File, `{"foo":"bar","last_message":"Restarted at earlier"}`)
	m, out, term := newMonitor(t, cfg, true)

	r := m.Run(context.Background())

	if !r.Verdict.Healthy || r.ExitCode != 0 || r.Outcome != nil || r.Action != history.ActionNone {
		t.Fatalf("expected healthy pass, got %+v", r)
	}
	if term.calls != 0 {
		t.Fatal("healthy pass must not terminate anything")
	}
	rec := loadState(t, cfg)
	if rec.Status != state.StatusRunning || rec.LastMessage != "Restarted at earlier" {
		t.Fatalf("unexpected state %+v", rec)
	}
	if string(rec.Extra["foo"]) != `"bar"` {
		t.Fatalf("unknown field lost: %v", rec.Extra)
	}
	want := "[2026-02-13 05:41:13] bot healthy (idle 5.0 min)\n"
	if out.String() != want {
		t.Fatalf("console=%q, want %q", out.String(), want)
	}
}

func TestRun_NoLaunchTarget(t *testing.T) {
	cfg := testConfig(t)
	m, out, _ := newMonitor(t, cfg, false)

	r := m.Run(context.Background())

	if r.ExitCode == 0 || r.Outcome == nil || r.Outcome.Succeeded {
		t.Fatalf("expected failed restart, got %+v", r)
	}
	if r.Outcome.Message != process.ErrNoLaunchTarget.Error() {
		t.Fatalf("message=%q", r.Outcome.Message)
	}
	rec := loadState(t, cfg)
	if rec.Status != state.StatusError || rec.LastMessage != "no launch target found" {
		t.Fatalf("unexpected state %+v", rec)
	}
	if !strings.Contains(out.String(), "restart failed: no launch target found") {
		t.Fatalf("console=%q", out.String())
	}
}

func TestRun_CandidateFallback(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, filepath.Join(cfg.Target.WorkDir, "hyperliquid_main.py"), "")
	m, _, _ := newMonitor(t, cfg, false)

	r := m.Run(context.Background())

	if r.Outcome == nil || !r.Outcome.Succeeded || r.Outcome.Strategy != "candidate:hyperliquid_main.py" {
		t.Fatalf("expected candidate launch, got %+v", r.Outcome)
	}
}

func TestRun_ProbeErrorFailsClosed(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.Target.ActivityLog, logLine(fixedNow.Add(-time.Minute), "ok"))
	m, _, _ := newMonitor(t, cfg, true, WithDetector(fakeDetector{alive: true, err: errors.New("boom")}))

	r := m.Run(context.Background())

	if r.Verdict.Healthy || r.Verdict.Reason != health.ReasonNotRunning {
		t.Fatalf("probe error must read as not running: %+v", r.Verdict)
	}
}

func TestRun_UnknownActivityRestarts(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.Target.ActivityLog, "no timestamp here\n")
	m, _, _ := newMonitor(t, cfg, true)

	r := m.Run(context.Background())

	if r.Verdict.Reason != health.ReasonNoActivity || r.Action != history.ActionRestart {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestRun_HistoryEvents(t *testing.T) {
	cfg := testConfig(t)
	sink := &memorySink{err: errors.New("sink down")}
	writeFile(t, cfg.Target.ActivityLog, logLine(fixedNow.Add(-2*time.Minute), "ok"))
	m, _, _ := newMonitor(t, cfg, true, WithHistory(sink, time.Second))

	m.Run(context.Background())
	_ = os.Remove(cfg.Target.ActivityLog)
	r := m.Run(context.Background())

	if r.ExitCode != 1 {
		t.Fatalf("sink failure must not change the exit code logic, got %d", r.ExitCode)
	}
	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sink.events))
	}
	first, second := sink.events[0], sink.events[1]
	if first.Type != history.EventHealthy || first.Record.LastActivity == nil || first.Record.IdleSeconds != 120 {
		t.Fatalf("unexpected healthy event %+v", first)
	}
	if second.Type != history.EventRestartFailed || second.Record.Message != "no launch target found" || second.Record.Success {
		t.Fatalf("unexpected failure event %+v", second)
	}
	if err := m.Close(); err != nil || !sink.closed {
		t.Fatalf("close: %v closed=%v", err, sink.closed)
	}
}

func TestStop_RecordsStopped(t *testing.T) {
	cfg := testConfig(t)
	sink := &memorySink{}
	m, out, term := newMonitor(t, cfg, true, WithHistory(sink, time.Second))

	r := m.Stop(context.Background())

	if term.calls != 1 || r.Status != state.StatusStopped {
		t.Fatalf("unexpected report %+v", r)
	}
	rec := loadState(t, cfg)
	if rec.Status != state.StatusStopped || rec.LastMessage != "Stopped by operator at 2026-02-13T05:41:13Z" {
		t.Fatalf("unexpected state %+v", rec)
	}
	if len(sink.events) != 1 || sink.events[0].Type != history.EventStopped {
		t.Fatalf("unexpected events %+v", sink.events)
	}
	if !strings.Contains(out.String(), "bot stopped") {
		t.Fatalf("console=%q", out.String())
	}
	if last, ok := m.Last(); !ok || last.Action != history.ActionStop {
		t.Fatalf("last=%+v ok=%v", last, ok)
	}
}

func TestStrategies_Order(t *testing.T) {
	cfg := testConfig(t)
	ss := Strategies(cfg)
	if len(ss) != 2 {
		t.Fatalf("expected 2 strategies, got %d", len(ss))
	}
	if _, ok := ss[0].(process.ScriptStrategy); !ok {
		t.Fatalf("first strategy should be the script, got %T", ss[0])
	}
	cfg.Launch.Script = ""
	cfg.Launch.Candidates = nil
	if len(Strategies(cfg)) != 0 {
		t.Fatal("expected no strategies")
	}
}

func TestNew_BadPattern(t *testing.T) {
	cfg := testConfig(t)
	cfg.Target.Pattern = "("
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}
