package activity

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Delimiter separates the timestamp from the free-form message.
const Delimiter = " - "

// wallLayout is the local wall-clock part of a line, before the "(UTC+N)" suffix.
const wallLayout = "2006-01-02 15:04:05"

const (
	readChunk    = 4096
	maxLineBytes = 1 << 20
)

// LastActivity returns the UTC instant of the last line in the log at path.
// The second result is false when the file is missing, empty, or its last
// line is blank or malformed. It never returns an error: an unknown
// activity time is itself a health signal.
func LastActivity(path string) (time.Time, bool) {
	line, err := LastLine(path)
	if err != nil || line == "" {
		return time.Time{}, false
	}
	return Parse(line)
}

// Parse extracts the timestamp from a line of the form
// "2026-02-13 13:41:13 (UTC+8) - message" and converts it to UTC.
func Parse(line string) (time.Time, bool) {
	head, _, ok := strings.Cut(strings.TrimSpace(line), Delimiter)
	if !ok {
		return time.Time{}, false
	}
	head = strings.TrimSpace(head)
	open := strings.LastIndex(head, " (")
	if open < 0 || !strings.HasSuffix(head, ")") {
		return time.Time{}, false
	}
	wall, err := time.Parse(wallLayout, head[:open])
	if err != nil {
		return time.Time{}, false
	}
	offset, ok := parseOffset(head[open+2 : len(head)-1])
	if !ok {
		return time.Time{}, false
	}
	return wall.Add(-offset).UTC(), true
}

// parseOffset accepts "UTC", "UTC+8", "UTC-3", "UTC+05:30".
func parseOffset(s string) (time.Duration, bool) {
	rest, ok := strings.CutPrefix(s, "UTC")
	if !ok {
		return 0, false
	}
	if rest == "" {
		return 0, true
	}
	var sign time.Duration
	switch rest[0] {
	case '+':
		sign = 1
	case '-':
		sign = -1
	default:
		return 0, false
	}
	hs, ms, hasMinutes := strings.Cut(rest[1:], ":")
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 14 {
		return 0, false
	}
	var m int
	if hasMinutes {
		m, err = strconv.Atoi(ms)
		if err != nil || m < 0 || m > 59 {
			return 0, false
		}
	}
	return sign * (time.Duration(h)*time.Hour + time.Duration(m)*time.Minute), true
}

// LastLine returns the final line of the file, reading backwards from EOF.
// A single trailing newline terminates the last line rather than starting
// an empty one. Surrounding whitespace is trimmed.
func LastLine(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return "", err
	}

	var buf []byte
	end := st.Size()
	for end > 0 && len(buf) < maxLineBytes {
		start := end - readChunk
		if start < 0 {
			start = 0
		}
		chunk := make([]byte, end-start)
		if _, err := f.ReadAt(chunk, start); err != nil && err != io.EOF {
			return "", err
		}
		buf = append(chunk, buf...)
		end = start

		body := trimTrailingNewline(buf)
		if i := bytes.LastIndexByte(body, '\n'); i >= 0 {
			return strings.TrimSpace(string(body[i+1:])), nil
		}
	}
	return strings.TrimSpace(string(trimTrailingNewline(buf))), nil
}

func trimTrailingNewline(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}
