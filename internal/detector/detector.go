package detector

import (
	"fmt"
	"log/slog"
)

// Detector is a strategy that determines if the watched process is running.
// It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the process is detected as running.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

// Probe methods selectable from configuration.
const (
	MethodProcfs = "procfs"
	MethodPgrep  = "pgrep"
)

// New returns the detector for the given method and command-line pattern.
func New(method, pattern string) (Detector, error) {
	switch method {
	case "", MethodProcfs:
		return NewPatternDetector(pattern)
	case MethodPgrep:
		return PgrepDetector(pattern), nil
	default:
		return nil, fmt.Errorf("unknown probe method %q", method)
	}
}

// IsRunning reports whether d sees the process. Any detection error is
// treated as "not running" so that a broken probe leads to a restart rather
// than masking a dead process.
func IsRunning(d Detector, logger *slog.Logger) bool {
	alive, err := d.Alive()
	if err != nil {
		if logger != nil {
			logger.Warn("process probe failed", "detector", d.Describe(), "error", err)
		}
		return false
	}
	return alive
}
