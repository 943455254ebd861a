package portal

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"
)

// logPollInterval is how often the tailer checks the log file for new
// bytes or rotation, matching spec.md 5's "small polling interval".
const logPollInterval = 500 * time.Millisecond

// logTailer follows an append-only log file, detecting truncation and
// rotation (the file at path replaced by a new inode) by re-opening
// whenever a Stat shows the file shrank or its identity changed.
type logTailer struct {
	path   string
	file   *os.File
	reader *bufio.Reader
	offset int64
	ino    uint64
}

func newLogTailer(path string) *logTailer {
	return &logTailer{path: path}
}

// Lines returns new lines appended since the last call, or an empty slice
// if nothing changed or the file does not exist yet.
func (t *logTailer) Lines() []string {
	if err := t.ensureOpen(); err != nil {
		return nil
	}

	info, err := t.file.Stat()
	if err != nil {
		return nil
	}
	if info.Size() < t.offset {
		// Truncated or rotated out from under us; reopen from the start.
		t.close()
		if err := t.ensureOpen(); err != nil {
			return nil
		}
	}

	var lines []string
	for {
		line, err := t.reader.ReadString('\n')
		if len(line) > 0 {
			lines = append(lines, trimNewline(line))
			t.offset += int64(len(line))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
	}
	return lines
}

func (t *logTailer) ensureOpen() error {
	if t.file != nil {
		if inode, err := fileInode(t.path); err == nil && inode != t.ino {
			t.close()
		}
	}
	if t.file != nil {
		return nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	t.file = f
	t.reader = bufio.NewReader(f)
	t.offset = 0
	t.ino, _ = fileInode(t.path)
	return nil
}

func (t *logTailer) close() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
		t.reader = nil
	}
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}

// TailLastLines reads the last n lines of the file at path without
// maintaining tailer state, for the one-shot /api/logs?lines=N endpoint.
func TailLastLines(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	lines := splitLines(data)
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func splitLines(data []byte) []string {
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, trimNewline(string(data[start:i+1])))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}

// run polls the log file for new lines until ctx is canceled, sending each
// to onLine. Used by the SSE handler to drive the "log" event.
func (t *logTailer) run(ctx context.Context, onLine func(line string)) {
	ticker := time.NewTicker(logPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.close()
			return
		case <-ticker.C:
			for _, line := range t.Lines() {
				onLine(line)
			}
		}
	}
}
