package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a recorded line before truncation.
	MaxLineLength = 4096

	// MaxRecentLines is the number of recent lines kept for the dashboard.
	MaxRecentLines = 100
)

// OutputCapture collects the combined stdout/stderr of a test runner.
// The full byte stream is kept for the failure report; complete lines also
// go into a ring of recent lines and, when verbose, into the logger.
// Safe for concurrent writes, so one capture may back both streams.
type OutputCapture struct {
	section string
	logger  *slog.Logger
	verbose bool

	mu      sync.Mutex
	all     bytes.Buffer
	partial []byte

	// Circular buffer for recent lines
	ring   []string
	ringIx int
	lines  int
}

// NewOutputCapture creates a capture for the named group. logger may be nil
// when verbose is false.
func NewOutputCapture(section string, logger *slog.Logger, verbose bool) *OutputCapture {
	return &OutputCapture{
		section: section,
		logger:  logger,
		verbose: verbose && logger != nil,
		ring:    make([]string, MaxRecentLines),
	}
}

// Write implements io.Writer.
func (c *OutputCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	c.all.Write(p)
	c.partial = append(c.partial, p...)
	var complete []string
	for {
		i := bytes.IndexByte(c.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(c.partial[:i]), "\r")
		c.partial = c.partial[i+1:]
		complete = append(complete, c.record(line))
	}
	c.mu.Unlock()

	for _, line := range complete {
		c.logLine(line)
	}
	return len(p), nil
}

// Flush records a trailing line that had no newline. Called once the
// process has exited.
func (c *OutputCapture) Flush() {
	c.mu.Lock()
	if len(c.partial) == 0 {
		c.mu.Unlock()
		return
	}
	line := c.record(string(c.partial))
	c.partial = nil
	c.mu.Unlock()
	c.logLine(line)
}

// record stores a line in the ring. Caller holds mu.
func (c *OutputCapture) record(line string) string {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}
	c.ring[c.ringIx] = line
	c.ringIx = (c.ringIx + 1) % MaxRecentLines
	c.lines++
	return line
}

func (c *OutputCapture) logLine(line string) {
	if !c.verbose {
		return
	}
	c.logger.Log(context.Background(), classifyLine(line), "runner_output",
		"group", c.section,
		"line", line,
	)
}

// classifyLine picks the log level for a line of runner output.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.HasPrefix(lower, "traceback") ||
		strings.HasPrefix(lower, "fail:") ||
		strings.HasPrefix(lower, "error:") ||
		strings.Contains(lower, "failed (") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// Bytes returns a copy of everything captured so far.
func (c *OutputCapture) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.all.Bytes())
}

// LineCount returns the number of complete lines seen.
func (c *OutputCapture) LineCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (c *OutputCapture) RecentLines(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n > MaxRecentLines {
		n = MaxRecentLines
	}
	if n > c.lines {
		n = c.lines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (c.ringIx - n + i + MaxRecentLines) % MaxRecentLines
		lines = append(lines, c.ring[idx])
	}
	return lines
}

// LastLine returns the most recent complete line, or "".
func (c *OutputCapture) LastLine() string {
	if recent := c.RecentLines(1); len(recent) == 1 {
		return recent[0]
	}
	return ""
}
