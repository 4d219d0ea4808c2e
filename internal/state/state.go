package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Status is the externally visible state of the watched process.
type Status string

const (
	StatusRunning Status = "Running"
	StatusError   Status = "Error"
	StatusStopped Status = "Stopped"
)

// JSON keys owned by the recorder. Any other key in the file is preserved.
const (
	keyStatus      = "status"
	keyLastCheck   = "last_check"
	keyLastMessage = "last_message"
)

// Record is the typed view of the status file.
type Record struct {
	Status      Status    `json:"status"`
	LastCheck   time.Time `json:"last_check"`
	LastMessage string    `json:"last_message,omitempty"`
	// Extra holds fields written by other tools, untouched by the recorder.
	Extra map[string]json.RawMessage `json:"-"`
}

// Recorder persists the outcome of each pass to a JSON file.
// Persistence is best-effort: failures are logged and never returned.
type Recorder struct {
	path   string
	logger *slog.Logger
}

func NewRecorder(path string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{path: path, logger: logger}
}

func (r *Recorder) Path() string { return r.path }

// Record merges status, last_check and (when non-empty) last_message into the
// existing file and writes it back atomically.
func (r *Recorder) Record(status Status, message string, now time.Time) {
	if err := r.record(status, message, now); err != nil {
		r.logger.Error("failed to update state file", "path", r.path, "error", err)
	}
}

func (r *Recorder) record(status Status, message string, now time.Time) error {
	fields := r.loadRaw()
	if err := setString(fields, keyStatus, string(status)); err != nil {
		return err
	}
	if err := setString(fields, keyLastCheck, now.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	if message != "" {
		if err := setString(fields, keyLastMessage, message); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return writeAtomic(r.path, append(data, '\n'))
}

// loadRaw returns the persisted object, or an empty one when the file is
// missing or not a JSON object.
func (r *Recorder) loadRaw() map[string]json.RawMessage {
	fields := make(map[string]json.RawMessage)
	b, err := os.ReadFile(filepath.Clean(r.path))
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("state file unreadable, starting fresh", "path", r.path, "error", err)
		}
		return fields
	}
	if err := json.Unmarshal(b, &fields); err != nil || fields == nil {
		r.logger.Warn("state file corrupt, starting fresh", "path", r.path, "error", err)
		return make(map[string]json.RawMessage)
	}
	return fields
}

// Load returns the typed view of the status file.
func (r *Recorder) Load() (Record, error) {
	b, err := os.ReadFile(filepath.Clean(r.path))
	if err != nil {
		return Record{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return Record{}, fmt.Errorf("parse state file %s: %w", r.path, err)
	}
	var rec Record
	rec.Extra = make(map[string]json.RawMessage)
	for k, v := range fields {
		switch k {
		case keyStatus:
			var s string
			_ = json.Unmarshal(v, &s)
			rec.Status = Status(s)
		case keyLastCheck:
			var s string
			if json.Unmarshal(v, &s) == nil {
				rec.LastCheck, _ = time.Parse(time.RFC3339Nano, s)
			}
		case keyLastMessage:
			_ = json.Unmarshal(v, &rec.LastMessage)
		default:
			rec.Extra[k] = v
		}
	}
	return rec, nil
}

func setString(fields map[string]json.RawMessage, key, value string) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	fields[key] = b
	return nil
}

// defaultFileMode applies when the status file does not exist yet.
const defaultFileMode os.FileMode = 0o644

// writeAtomic writes to a temp file in the target directory and renames it
// over path so readers never observe a partial file. The existing file's
// permissions carry over to the replacement.
func writeAtomic(path string, data []byte) error {
	mode := defaultFileMode
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}
