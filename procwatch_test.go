package procwatch

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestFacadeCheckNoLaunchTarget(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PROCWATCH_TARGET_WORKDIR", dir)
	t.Setenv("PROCWATCH_TARGET_PATTERN", "procwatch-facade-test-[a-z]+-marker")
	c, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.State.File != filepath.Join(dir, "bot_state.json") {
		t.Fatalf("state file not resolved against workdir: %s", c.State.File)
	}

	var out bytes.Buffer
	now := time.Date(2026, 2, 13, 5, 41, 13, 0, time.UTC)
	m, err := New(c, WithOutput(&out), WithClock(func() time.Time { return now }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Close() }()

	r := m.Check(context.Background())
	if r.ExitCode != 1 || r.Status != StatusError {
		t.Fatalf("unexpected report %+v", r)
	}
	if last, ok := m.Last(); !ok || last.ExitCode != 1 {
		t.Fatalf("last=%+v", last)
	}
	if !strings.Contains(out.String(), "no launch target found") {
		t.Fatalf("console=%q", out.String())
	}
}

func TestFacadeEvaluateAndActivity(t *testing.T) {
	p := filepath.Join(t.TempDir(), "trading_bot.log")
	if err := os.WriteFile(p, []byte("2026-02-13 13:36:13 (UTC+8) - tick\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	last, ok := LastActivity(p)
	if !ok {
		t.Fatal("expected activity")
	}
	now := time.Date(2026, 2, 13, 5, 41, 13, 0, time.UTC)
	v := Evaluate(Signal{ProcessRunning: true, HasActivity: true, LastActivity: last}, now, 15*time.Minute)
	if !v.Healthy || v.Reason != "healthy (idle 5.0 min)" {
		t.Fatalf("verdict=%+v", v)
	}
}

func TestFacadeHTTPServer(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PROCWATCH_TARGET_WORKDIR", dir)
	t.Setenv("PROCWATCH_TARGET_PATTERN", "procwatch-facade-test-[a-z]+-marker")
	c, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(c, WithOutput(io.Discard), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatal(err)
	}
	srv := NewHTTPServer("127.0.0.1:0", "/w", m, reg)
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/w/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz=%d", resp.StatusCode)
	}
}

func TestNewHistorySinkSQLite(t *testing.T) {
	s, err := NewHistorySink(filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background(), HistoryEvent{Type: "healthy", OccurredAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
}
