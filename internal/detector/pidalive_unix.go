//go:build !windows

package detector

import (
	"errors"
	"slices"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// PIDAlive returns true if a process with given pid exists (or EPERM) and
// has not exited. Zombies count as gone: a released child stays in the
// table until its parent exits, yet it will never run again.
func PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err != nil && !errors.Is(err, syscall.EPERM) {
		return false
	}
	return !isZombie(pid)
}

func isZombie(pid int) bool {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	st, err := p.Status()
	if err != nil {
		return false
	}
	return slices.Contains(st, gopsproc.Zombie)
}
