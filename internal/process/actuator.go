package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// ErrNoLaunchTarget is reported when no strategy applies.
var ErrNoLaunchTarget = errors.New("no launch target found")

// Outcome is the result of one restart attempt. Succeeded means the
// replacement was spawned, not that it became healthy.
type Outcome struct {
	Succeeded  bool
	Message    string
	Strategy   string
	PID        int
	Terminated int
}

// Actuator kills whatever matches the watched pattern and launches a
// replacement with the first applicable strategy. It makes exactly one
// attempt per call.
type Actuator struct {
	Terminator Terminator
	Strategies []Strategy
	// PIDFile, when set, receives the PID of the spawned child.
	PIDFile string
	Logger  *slog.Logger
}

func (a *Actuator) Restart(ctx context.Context) Outcome {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var out Outcome
	if a.Terminator != nil {
		out.Terminated = a.Terminator.Terminate(ctx)
	}
	for _, s := range a.Strategies {
		if !s.Applicable() {
			logger.Debug("launch strategy not applicable", "strategy", s.Name())
			continue
		}
		out.Strategy = s.Name()
		pid, err := Spawn(s.Command())
		if err != nil {
			out.Message = fmt.Sprintf("error restarting via %s: %v", out.Strategy, err)
			logger.Error("launch failed", "strategy", out.Strategy, "error", err)
			return out
		}
		out.Succeeded = true
		out.PID = pid
		out.Message = fmt.Sprintf("restarted via %s (pid %d)", out.Strategy, pid)
		if err := WritePIDFile(a.PIDFile, pid); err != nil {
			logger.Warn("failed to write pid file", "path", a.PIDFile, "error", err)
		}
		logger.Info("launched replacement", "strategy", out.Strategy, "pid", pid)
		return out
	}
	out.Message = ErrNoLaunchTarget.Error()
	return out
}

// Spawn starts cmd detached from this session with stdio on the null
// device and releases it: the child is never waited on.
func Spawn(cmd *exec.Cmd) (int, error) {
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}
