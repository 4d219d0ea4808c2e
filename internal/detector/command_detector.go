package detector

import (
	"errors"
	"os/exec"
	"strings"
)

// CommandDetector runs a command that should succeed if the process is running.
type CommandDetector struct {
	Name string
	Args []string
}

// PgrepDetector matches the full command line with pgrep -f.
func PgrepDetector(pattern string) CommandDetector {
	return CommandDetector{Name: "pgrep", Args: []string{"-f", pattern}}
}

func (d CommandDetector) Alive() (bool, error) {
	// #nosec G204
	cmd := exec.Command(d.Name, d.Args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		// non-zero exit code means not alive
		return false, nil
	}
	return false, err
}

func (d CommandDetector) Describe() string {
	return "cmd:" + strings.TrimSpace(d.Name+" "+strings.Join(d.Args, " "))
}
