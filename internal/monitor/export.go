package monitor

import (
	"context"
	"time"

	"github.com/loykin/procwatch/internal/history"
	"github.com/loykin/procwatch/internal/metrics"
)

// Event converts a report to its history form.
func (r Report) Event() history.Event {
	rec := history.Record{
		Target:         r.Target,
		ProcessRunning: r.Signal.ProcessRunning,
		Healthy:        r.Verdict.Healthy,
		Reason:         r.Verdict.Reason,
		Action:         r.Action,
		Success:        true,
	}
	if r.Signal.HasActivity {
		t := r.Signal.LastActivity
		rec.LastActivity = &t
		rec.IdleSeconds = r.Verdict.Idle.Seconds()
	}
	typ := history.EventHealthy
	if o := r.Outcome; o != nil {
		rec.Success = o.Succeeded
		rec.Message = o.Message
		rec.Strategy = o.Strategy
		rec.PID = o.PID
	}
	switch {
	case r.Action == history.ActionStop:
		typ = history.EventStopped
	case r.Action == history.ActionRestart && rec.Success:
		typ = history.EventRestarted
	case r.Action == history.ActionRestart:
		typ = history.EventRestartFailed
	}
	return history.Event{Type: typ, OccurredAt: r.At, Record: rec}
}

// export ships the pass to history and metrics. Failures are logged only.
func (m *Monitor) export(ctx context.Context, r Report) {
	if m.sink != nil {
		timeout := m.historyTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hctx, cancel := context.WithTimeout(ctx, timeout)
		if err := m.sink.Send(hctx, r.Event()); err != nil {
			m.logger.Warn("failed to send history event", "error", err)
		}
		cancel()
	}

	if r.Action != history.ActionStop {
		metrics.ObservePass(metrics.Pass{
			Target:         r.Target,
			ProcessRunning: r.Signal.ProcessRunning,
			HasActivity:    r.Signal.HasActivity,
			Idle:           r.Verdict.Idle,
			Healthy:        r.Verdict.Healthy,
			Restarted:      r.Action == history.ActionRestart,
			RestartOK:      r.Outcome != nil && r.Outcome.Succeeded,
			At:             r.At,
		})
	}
	if m.sampleTarget && m.matcher != nil {
		if ms, err := m.matcher.Matches(); err == nil {
			pids := make([]int, 0, len(ms))
			for _, x := range ms {
				pids = append(pids, x.PID)
			}
			metrics.CollectTarget(r.Target, pids)
		}
	}
	if m.gatherer != nil && m.exporter.Enabled() {
		if err := m.exporter.Export(ctx, m.gatherer); err != nil {
			m.logger.Warn("failed to export metrics", "error", err)
		}
	}
}
