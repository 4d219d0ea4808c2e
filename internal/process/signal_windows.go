//go:build windows

package process

import (
	"os"

	"github.com/loykin/procwatch/internal/detector"
)

// terminate has no graceful variant on Windows; it is TerminateProcess.
func terminate(pid int) error { return kill(pid) }

func kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func processExists(pid int) bool { return detector.PIDAlive(pid) }
