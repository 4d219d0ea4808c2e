package history_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/procwatch/internal/history"
)

func openSQLite(t *testing.T) *history.SQLSink {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	sink, err := history.NewSQLSink(context.Background(), db, history.DialectSQLite)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestSQLSink_RecentNewestFirst(t *testing.T) {
	sink := openSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 13, 5, 0, 0, 0, time.UTC)
	activity := base.Add(-20 * time.Minute)

	events := []history.Event{
		{Type: history.EventHealthy, OccurredAt: base, Record: history.Record{Target: "bot", ProcessRunning: true, Healthy: true, Reason: "healthy (idle 1.0 min)", Action: history.ActionNone, Success: true}},
		{Type: history.EventRestarted, OccurredAt: base.Add(500 * time.Millisecond), Record: history.Record{Target: "bot", ProcessRunning: true, LastActivity: &activity, IdleSeconds: 1200, Reason: "no activity for 20.0 minutes", Action: history.ActionRestart, Success: true, Strategy: "script:run.sh", PID: 4242}},
		{Type: history.EventRestartFailed, OccurredAt: base.Add(time.Second), Record: history.Record{Target: "bot", Reason: "process not running", Action: history.ActionRestart, Message: "no launch target found"}},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	got, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Type != history.EventRestartFailed || got[1].Type != history.EventRestarted || got[2].Type != history.EventHealthy {
		t.Fatalf("unexpected order: %v %v %v", got[0].Type, got[1].Type, got[2].Type)
	}
	r := got[1].Record
	if r.PID != 4242 || r.Strategy != "script:run.sh" || r.IdleSeconds != 1200 {
		t.Fatalf("record mismatch: %+v", r)
	}
	if r.LastActivity == nil || !r.LastActivity.Equal(activity) {
		t.Fatalf("last activity mismatch: %v", r.LastActivity)
	}
	if got[0].Record.LastActivity != nil {
		t.Fatalf("expected nil last activity, got %v", got[0].Record.LastActivity)
	}
	if !got[1].OccurredAt.Equal(events[1].OccurredAt) {
		t.Fatalf("occurred_at mismatch: %v", got[1].OccurredAt)
	}
}

func TestSQLSink_RecentLimit(t *testing.T) {
	sink := openSQLite(t)
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		e := history.Event{Type: history.EventHealthy, OccurredAt: base.Add(time.Duration(i) * time.Minute), Record: history.Record{Target: "bot", Healthy: true}}
		if err := sink.Send(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	got, err := sink.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
}

func TestNewSQLSink_NilDB(t *testing.T) {
	if _, err := history.NewSQLSink(context.Background(), nil, history.DialectSQLite); err == nil {
		t.Fatal("expected error for nil db")
	}
}
