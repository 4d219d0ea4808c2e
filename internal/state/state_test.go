package state

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix permission bits")
	}
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("state is not JSON: %v\n%s", err, b)
	}
	return m
}

func TestRecord_CreatesFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bot_state.json")
	r := NewRecorder(p, quietLogger())
	now := time.Date(2026, 2, 13, 5, 41, 13, 0, time.UTC)
	r.Record(StatusRunning, "Restarted at x", now)

	m := readJSON(t, p)
	if m["status"] != "Running" {
		t.Fatalf("status=%v", m["status"])
	}
	if m["last_check"] != "2026-02-13T05:41:13Z" {
		t.Fatalf("last_check=%v", m["last_check"])
	}
	if m["last_message"] != "Restarted at x" {
		t.Fatalf("last_message=%v", m["last_message"])
	}
}

func TestRecord_PreservesUnknownFields(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bot_state.json")
	if err := os.WriteFile(p, []byte(`{"foo":"bar","nested":{"a":[1,2]},"last_message":"keep me"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRecorder(p, quietLogger())
	r.Record(StatusRunning, "", time.Now())

	m := readJSON(t, p)
	if m["foo"] != "bar" {
		t.Fatalf("foo lost: %v", m)
	}
	if _, ok := m["nested"].(map[string]any); !ok {
		t.Fatalf("nested lost: %v", m)
	}
	if m["last_message"] != "keep me" {
		t.Fatalf("empty message must not overwrite: %v", m["last_message"])
	}
	if m["status"] != "Running" {
		t.Fatalf("status=%v", m["status"])
	}
}

func TestRecord_Idempotent(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bot_state.json")
	r := NewRecorder(p, quietLogger())
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(5 * time.Minute)

	r.Record(StatusError, "no launch target found", first)
	r.Record(StatusError, "no launch target found", second)

	rec, err := r.Load()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusError || rec.LastMessage != "no launch target found" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.LastCheck.Equal(second) {
		t.Fatalf("last_check=%v, want %v", rec.LastCheck, second)
	}
}

func TestRecord_CorruptFileTreatedAsEmpty(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bot_state.json")
	for _, content := range []string{"{not json", "[1,2,3]", "null"} {
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		r := NewRecorder(p, quietLogger())
		r.Record(StatusStopped, "stopped", time.Now())
		m := readJSON(t, p)
		if m["status"] != "Stopped" || m["last_message"] != "stopped" {
			t.Fatalf("content %q: unexpected %v", content, m)
		}
	}
}

func TestRecord_FailureIsLoggedNotRaised(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	r := NewRecorder(filepath.Join(blocker, "state.json"), slog.New(slog.NewTextHandler(&buf, nil)))
	r.Record(StatusRunning, "", time.Now()) // must not panic
	if !strings.Contains(buf.String(), "failed to update state file") {
		t.Fatalf("expected error log, got %q", buf.String())
	}
}

func TestRecord_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(filepath.Join(dir, "bot_state.json"), quietLogger())
	r.Record(StatusRunning, "a", time.Now())
	r.Record(StatusRunning, "b", time.Now())
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only the state file, got %v", names)
	}
}

func TestLoad_ExposesExtraFields(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bot_state.json")
	if err := os.WriteFile(p, []byte(`{"status":"Running","last_check":"2026-02-13T05:41:13Z","foo":"bar"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	rec, err := NewRecorder(p, quietLogger()).Load()
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Extra["foo"]) != `"bar"` {
		t.Fatalf("extra=%v", rec.Extra)
	}
	if rec.LastCheck.IsZero() {
		t.Fatal("last_check not parsed")
	}
}

func TestRecord_KeepsFileMode(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	tests := []struct {
		name string
		seed os.FileMode // 0: no existing file
		want os.FileMode
	}{
		{"new file", 0, 0o644},
		{"existing 0644", 0o644, 0o644},
		{"existing 0640", 0o640, 0o640},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".json")
			if tt.seed != 0 {
				if err := os.WriteFile(p, []byte(`{"foo":"bar"}`), tt.seed); err != nil {
					t.Fatal(err)
				}
				// WriteFile is subject to umask
				if err := os.Chmod(p, tt.seed); err != nil {
					t.Fatal(err)
				}
			}
			NewRecorder(p, quietLogger()).Record(StatusRunning, "", time.Now())
			st, err := os.Stat(p)
			if err != nil {
				t.Fatal(err)
			}
			if got := st.Mode().Perm(); got != tt.want {
				t.Fatalf("mode after Record: %v, want %v", got, tt.want)
			}
		})
	}
}
