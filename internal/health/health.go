package health

import (
	"fmt"
	"time"
)

// DefaultMaxIdle is the idle window after which a running target is
// considered stuck.
const DefaultMaxIdle = 15 * time.Minute

// Reasons reported for unhealthy verdicts.
const (
	ReasonNotRunning = "process not running"
	ReasonNoActivity = "cannot determine last activity"
)

// Signal is the evidence gathered in one pass.
// HasActivity is false when the activity log could not tell us anything.
type Signal struct {
	ProcessRunning bool
	LastActivity   time.Time
	HasActivity    bool
}

// Verdict is the evaluator's decision for a Signal.
type Verdict struct {
	Healthy bool
	Reason  string
	// Idle is now - LastActivity when activity was known, zero otherwise.
	Idle time.Duration
}

// Evaluate combines the probes into a verdict. First matching rule wins:
// not running, idle longer than maxIdle, unknown activity, healthy.
func Evaluate(sig Signal, now time.Time, maxIdle time.Duration) Verdict {
	var idle time.Duration
	if sig.HasActivity {
		idle = now.Sub(sig.LastActivity)
	}
	if !sig.ProcessRunning {
		return Verdict{Healthy: false, Reason: ReasonNotRunning, Idle: idle}
	}
	if sig.HasActivity && idle > maxIdle {
		return Verdict{
			Healthy: false,
			Reason:  fmt.Sprintf("no activity for %.1f minutes", idle.Minutes()),
			Idle:    idle,
		}
	}
	if !sig.HasActivity {
		return Verdict{Healthy: false, Reason: ReasonNoActivity}
	}
	return Verdict{
		Healthy: true,
		Reason:  fmt.Sprintf("healthy (idle %.1f min)", idle.Minutes()),
		Idle:    idle,
	}
}
