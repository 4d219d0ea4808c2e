package process

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/loykin/procwatch/internal/env"
)

// Strategy is one way of launching a replacement. The actuator walks an
// ordered list and uses the first applicable strategy.
type Strategy interface {
	Name() string
	Applicable() bool
	// Command builds the command to spawn. Only called when Applicable.
	Command() *exec.Cmd
}

// ScriptStrategy runs a launch script at a fixed path through a shell,
// e.g. "bash run.sh aggressive --paper".
type ScriptStrategy struct {
	Path    string
	Shell   string
	Args    []string
	WorkDir string
}

func (s ScriptStrategy) Name() string { return "script:" + filepath.Base(s.Path) }

func (s ScriptStrategy) Applicable() bool { return isRegularFile(s.Path) }

func (s ScriptStrategy) Command() *exec.Cmd {
	shell := s.Shell
	if shell == "" {
		shell = "bash"
	}
	args := append([]string{s.Path}, s.Args...)
	// #nosec G204
	cmd := exec.Command(shell, args...)
	cmd.Dir = s.WorkDir
	return cmd
}

// CandidateStrategy runs the first file in WorkDir matching one of the
// glob Patterns (tried in order) with Interpreter. PathVar, when set, is
// exported to the child pointing at WorkDir.
type CandidateStrategy struct {
	WorkDir     string
	Patterns    []string
	Interpreter string
	PathVar     string
	// BaseEnv replaces the OS environment as the child's base when non-nil.
	BaseEnv []string
}

func (s CandidateStrategy) Name() string {
	if p := s.Resolve(); p != "" {
		return "candidate:" + filepath.Base(p)
	}
	return "candidate"
}

// Resolve returns the script to run, or "" when nothing matches.
func (s CandidateStrategy) Resolve() string {
	for _, pattern := range s.Patterns {
		matches, err := filepath.Glob(filepath.Join(s.WorkDir, pattern))
		if err != nil {
			continue
		}
		for _, m := range matches {
			if isRegularFile(m) {
				return m
			}
		}
	}
	return ""
}

func (s CandidateStrategy) Applicable() bool { return s.Resolve() != "" }

func (s CandidateStrategy) Command() *exec.Cmd {
	interp := s.Interpreter
	if interp == "" {
		interp = "python3"
	}
	// #nosec G204
	cmd := exec.Command(interp, s.Resolve())
	cmd.Dir = s.WorkDir

	e := env.New()
	if s.BaseEnv != nil {
		e.FromList(s.BaseEnv)
	} else {
		e.FromOS()
	}
	if s.PathVar != "" {
		e.Set(s.PathVar, s.WorkDir)
	}
	cmd.Env = e.Merge(nil)
	return cmd
}

func isRegularFile(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
