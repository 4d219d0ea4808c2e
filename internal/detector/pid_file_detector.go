package detector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PIDFileDetector reports whether the PID recorded at the last launch is
// still alive. The file holds the PID on the first line and optionally a
// JSON meta line with the process start time, used to reject reused PIDs.
type PIDFileDetector struct {
	PIDFile string
}

type pidMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// ReadPID returns the PID and recorded start time (0 if absent).
func (d PIDFileDetector) ReadPID() (int, int64, error) {
	data, err := os.ReadFile(filepath.Clean(d.PIDFile))
	if err != nil {
		return 0, 0, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid pid in %s: %w", d.PIDFile, err)
	}
	var meta pidMeta
	if len(lines) >= 2 {
		_ = json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &meta)
	}
	return pid, meta.StartUnix, nil
}

func (d PIDFileDetector) Alive() (bool, error) {
	pid, start, err := d.ReadPID()
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if start > 0 {
		if cur := StartUnix(pid); cur > 0 && cur != start {
			return false, nil // PID reused; not our process
		}
	}
	return PIDAlive(pid), nil
}

func (d PIDFileDetector) Describe() string { return "pidfile:" + d.PIDFile }
