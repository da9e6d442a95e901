package process

import (
	"bufio"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"sync/atomic"
)

// portAnnouncer scans a server's stdout for the first line announcing its
// port and delivers the port through a handoff. It keeps draining the
// stream afterwards so the server never blocks on a full pipe.
type portAnnouncer struct {
	pattern *regexp.Regexp
	port    *Handoff[int]
	logger  *slog.Logger

	linesRead atomic.Int64
}

func newPortAnnouncer(pattern *regexp.Regexp, port *Handoff[int], logger *slog.Logger) *portAnnouncer {
	return &portAnnouncer{pattern: pattern, port: port, logger: logger}
}

// Run reads lines until EOF.
func (a *portAnnouncer) Run(r io.Reader) {
	scanner := bufio.NewScanner(r)
	const maxLineSize = 64 * 1024
	scanner.Buffer(make([]byte, maxLineSize), 1024*1024)

	announced := false
	for scanner.Scan() {
		line := scanner.Text()
		a.linesRead.Add(1)
		a.logger.Debug("server_output", "line", line)

		if announced {
			continue
		}
		if port, ok := a.match(line); ok {
			announced = a.port.Put(port) == nil
		}
	}
}

// match extracts the port from an announcement line.
func (a *portAnnouncer) match(line string) (int, bool) {
	m := a.pattern.FindStringSubmatch(line)
	if len(m) < 2 {
		return 0, false
	}
	port, err := strconv.Atoi(m[1])
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

// LinesRead returns the number of lines seen.
func (a *portAnnouncer) LinesRead() int64 {
	return a.linesRead.Load()
}
