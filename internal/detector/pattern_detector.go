package detector

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Match is a process whose command line matched the pattern.
type Match struct {
	PID       int
	Cmdline   string
	StartedAt time.Time
}

// PatternDetector scans the process table and matches each full command
// line against a regular expression, like pgrep -f.
type PatternDetector struct {
	Pattern *regexp.Regexp
	// Exclude lists PIDs that are never reported. NewPatternDetector fills it
	// with the watchdog's own PID and its parent so a wrapper shell carrying
	// the pattern in its arguments is not mistaken for the target.
	Exclude []int

	list func() ([]*gopsproc.Process, error)
}

func NewPatternDetector(pattern string) (*PatternDetector, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid process pattern %q: %w", pattern, err)
	}
	return &PatternDetector{
		Pattern: re,
		Exclude: []int{os.Getpid(), os.Getppid()},
		list:    gopsproc.Processes,
	}, nil
}

// Matches returns every live process matching the pattern. Processes that
// exit or deny access while being inspected are skipped.
func (d *PatternDetector) Matches() ([]Match, error) {
	list := d.list
	if list == nil {
		list = gopsproc.Processes
	}
	procs, err := list()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var out []Match
	for _, p := range procs {
		pid := int(p.Pid)
		if slices.Contains(d.Exclude, pid) {
			continue
		}
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}
		if !d.Pattern.MatchString(cmdline) {
			continue
		}
		m := Match{PID: pid, Cmdline: cmdline}
		if s := StartUnix(pid); s > 0 {
			m.StartedAt = time.Unix(s, 0)
		}
		out = append(out, m)
	}
	return out, nil
}

func (d *PatternDetector) Alive() (bool, error) {
	ms, err := d.Matches()
	if err != nil {
		return false, err
	}
	return len(ms) > 0, nil
}

func (d *PatternDetector) Describe() string { return "pattern:" + d.Pattern.String() }
