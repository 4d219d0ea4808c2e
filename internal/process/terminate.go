package process

import (
	"context"
	"log/slog"
	"os/exec"
	"time"

	"github.com/loykin/procwatch/internal/detector"
)

// DefaultKillGrace is how long terminated processes get before SIGKILL.
const DefaultKillGrace = 2 * time.Second

// Terminator stops every process matching the watched pattern.
// Failures are not reported: the target may already be gone.
type Terminator interface {
	// Terminate returns the number of processes it signalled.
	Terminate(ctx context.Context) int
}

// Matcher lists the processes to terminate.
type Matcher interface {
	Matches() ([]detector.Match, error)
}

// PatternTerminator sends SIGTERM to each matching process, waits up to
// Grace for them to exit and SIGKILLs the survivors.
type PatternTerminator struct {
	Matcher Matcher
	Grace   time.Duration
	Logger  *slog.Logger
}

func (t PatternTerminator) Terminate(ctx context.Context) int {
	ms, err := t.Matcher.Matches()
	if err != nil {
		t.log().Warn("cannot list processes to terminate", "error", err)
		return 0
	}
	var pending []int
	for _, m := range ms {
		if err := terminate(m.PID); err != nil {
			t.log().Debug("terminate failed", "pid", m.PID, "error", err)
			continue
		}
		t.log().Info("terminated process", "pid", m.PID, "cmdline", m.Cmdline)
		pending = append(pending, m.PID)
	}
	signalled := len(pending)
	if signalled == 0 {
		return 0
	}

	grace := t.Grace
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return signalled
		case <-timer.C:
			for _, pid := range pending {
				_ = kill(pid)
				t.log().Warn("process ignored SIGTERM, killed", "pid", pid)
			}
			return signalled
		case <-tick.C:
			alive := pending[:0]
			for _, pid := range pending {
				if processExists(pid) {
					alive = append(alive, pid)
				}
			}
			pending = alive
		}
	}
	return signalled
}

func (t PatternTerminator) log() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

// PkillTerminator delegates to pkill -f, pairing with the pgrep probe.
// pkill does not report how many processes it signalled, so Terminate
// returns 1 when anything matched.
type PkillTerminator struct {
	Pattern string
}

func (t PkillTerminator) Terminate(ctx context.Context) int {
	// #nosec G204
	if err := exec.CommandContext(ctx, "pkill", "-f", t.Pattern).Run(); err != nil {
		return 0 // exit 1: nothing matched
	}
	return 1
}
