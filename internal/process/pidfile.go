package process

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/loykin/procwatch/internal/detector"
)

// WritePIDFile records pid and its start time in the format read by
// detector.PIDFileDetector.
func WritePIDFile(path string, pid int) error {
	if path == "" || pid <= 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	content := fmt.Sprintf("%d\n", pid)
	if start := detector.StartUnix(pid); start > 0 {
		content += fmt.Sprintf("{\"start_unix\":%d}\n", start)
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
