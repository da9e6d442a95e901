package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-suite-runner/internal/catalog"
)

// ServerBacked runs a test group against a companion application server.
// The server is started first and must announce its listening port on
// stdout; the runner command is then built with that port.
type ServerBacked struct {
	*Base

	cat       *catalog.Catalog
	group     *catalog.Section
	configDir *TempDir
	pattern   *regexp.Regexp
	port      *Handoff[int]

	smu        sync.Mutex
	server     *proc
	serverOut  *os.File
	serverEOF  chan struct{} // closed when the server's stdout is drained
	serverPort int
	serverOnce sync.Once
}

var _ Controller = (*ServerBacked)(nil)

// NewServerBacked creates a controller for a server-backed catalog group.
func NewServerBacked(cat *catalog.Catalog, section string, opts Options) (*ServerBacked, error) {
	group, ok := cat.Lookup(section)
	if !ok {
		return nil, fmt.Errorf("server group %q not in catalog", section)
	}
	if !group.IsServer() {
		return nil, fmt.Errorf("group %q is not server-backed", section)
	}
	pattern, err := regexp.Compile(group.Pattern())
	if err != nil {
		return nil, fmt.Errorf("group %q port pattern: %w", section, err)
	}

	s := &ServerBacked{
		Base:    newBase(section, opts),
		cat:     cat,
		group:   group,
		pattern: pattern,
		port:    NewHandoff[int](),
	}

	s.configDir, err = NewTempDir("suite-" + section + "-home-")
	if err != nil {
		return nil, err
	}
	s.addDir(s.configDir)
	setEnvIf(s.Base, cat.Env.ConfigHome, s.configDir.Path())

	return s, nil
}

// WillRun reports whether the group is enabled and every dependency it
// requires is available.
func (s *ServerBacked) WillRun() bool {
	return s.group.Enabled() && s.cat.HaveAll(s.group.Requires)
}

// Port returns the port the server announced, or 0.
func (s *ServerBacked) Port() int {
	s.smu.Lock()
	defer s.smu.Unlock()
	return s.serverPort
}

// Launch starts the server, waits for its port and then starts the runner.
func (s *ServerBacked) Launch(ctx context.Context) error {
	if !s.claimLaunch() {
		return ErrAlreadyLaunched
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	testDir, err := s.resolveTestDir(ctx)
	if err != nil {
		return err
	}

	vars := map[string]string{
		"config_dir": s.configDir.Path(),
		"test_dir":   testDir,
	}
	if err := s.startServer(catalog.Expand(s.group.Server, vars)); err != nil {
		return err
	}

	port, err := s.awaitPort(ctx)
	if err != nil {
		return err
	}
	vars["port"] = strconv.Itoa(port)

	s.Base.mu.Lock()
	s.Base.cmd = catalog.Expand(s.group.Runner, vars)
	s.Base.mu.Unlock()

	return s.start(ctx)
}

// resolveTestDir returns the group's test directory, running the catalog's
// lookup command when no literal directory is configured.
func (s *ServerBacked) resolveTestDir(ctx context.Context) (string, error) {
	if s.group.TestDir != "" || len(s.group.TestDirCommand) == 0 {
		return s.group.TestDir, nil
	}

	argv := s.group.TestDirCommand
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = mergeEnv(os.Environ(), s.Env())
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("resolve test dir for %s: %w", s.section, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (s *ServerBacked) startServer(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("start server for %s: empty command", s.section)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("start server for %s: %w", s.section, err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = mergeEnv(os.Environ(), s.Env())
	cmd.Stdout = w

	p, err := startProc(cmd)
	w.Close()
	if err != nil {
		r.Close()
		return fmt.Errorf("start server for %s: %w", s.section, err)
	}

	eof := make(chan struct{})
	s.smu.Lock()
	s.server = p
	s.serverOut = r
	s.serverEOF = eof
	s.smu.Unlock()

	s.logger.Debug("server_started", "pid", p.pid)

	announcer := newPortAnnouncer(s.pattern, s.port, s.logger)
	go func() {
		defer close(eof)
		announcer.Run(r)
		r.Close()
	}()
	return nil
}

// awaitPort blocks until the server announces its port, closes its stdout
// (normally by exiting), or the server timeout or ctx expires.
func (s *ServerBacked) awaitPort(ctx context.Context) (int, error) {
	s.smu.Lock()
	server, eof := s.server, s.serverEOF
	s.smu.Unlock()

	tctx, cancel := context.WithTimeout(ctx, s.opts.ServerTimeout)
	defer cancel()

	port, err := s.port.Get(tctx, eof)
	switch {
	case err == nil:
		s.smu.Lock()
		s.serverPort = port
		s.smu.Unlock()
		s.logger.Debug("server_port", "port", port)
		return port, nil
	case errors.Is(err, ErrHandoffAborted):
		select {
		case <-server.exited:
			return 0, fmt.Errorf("%s: %w (status %d)", s.section, ErrServerExited, server.exitStatus())
		case <-time.After(s.opts.KillInterval):
			return 0, fmt.Errorf("%s: %w (stdout closed)", s.section, ErrServerExited)
		}
	case ctx.Err() != nil:
		return 0, ctx.Err()
	default:
		return 0, fmt.Errorf("%s after %v: %w", s.section, s.opts.ServerTimeout, ErrServerTimeout)
	}
}

// Cleanup stops the server, then the runner, then releases directories.
func (s *ServerBacked) Cleanup() {
	s.serverOnce.Do(s.stopServer)
	s.Base.Cleanup()
}

// stopServer terminates the server group, escalating to SIGKILL if it does
// not exit within the kill polling window.
func (s *ServerBacked) stopServer() {
	s.smu.Lock()
	server, out := s.server, s.serverOut
	s.smu.Unlock()

	if server == nil {
		return
	}
	defer out.Close()

	if !server.alive() {
		return
	}

	if err := server.signalGroup(syscall.SIGTERM); err != nil {
		s.logger.Debug("server_signal_failed", "pid", server.pid, "error", err)
	}
	if server.awaitExit(s.opts.KillAttempts, s.opts.KillInterval) {
		s.logger.Debug("server_stopped", "pid", server.pid)
		return
	}

	stopProc(s.logger, server, syscall.SIGKILL, s.opts.KillAttempts, s.opts.KillInterval)
}
