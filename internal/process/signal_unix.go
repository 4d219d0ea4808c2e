//go:build !windows

package process

import (
	"syscall"

	"github.com/loykin/procwatch/internal/detector"
)

// terminate asks the process to exit.
func terminate(pid int) error { return syscall.Kill(pid, syscall.SIGTERM) }

// kill forces the process to exit.
func kill(pid int) error { return syscall.Kill(pid, syscall.SIGKILL) }

// processExists reports whether pid still refers to a running process.
func processExists(pid int) bool { return detector.PIDAlive(pid) }
