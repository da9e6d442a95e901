package process

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-suite-runner/internal/logging"
)

// Base implements the launch/wait/cleanup protocol shared by all
// controllers. Variants set cmd, env and dirs before delegating to
// Base.Launch.
type Base struct {
	section string
	opts    Options
	logger  *slog.Logger

	cmd  []string
	env  map[string]string
	dirs []*TempDir

	mu       sync.Mutex
	launched bool
	p        *proc
	capture  *logging.OutputCapture

	cleanupOnce sync.Once
}

// NewBase creates a controller for an arbitrary command. It has no
// prerequisites, so WillRun is always true.
func NewBase(section string, command []string, opts Options) *Base {
	b := newBase(section, opts)
	b.cmd = append([]string(nil), command...)
	return b
}

func newBase(section string, opts Options) *Base {
	opts = opts.withDefaults()
	return &Base{
		section: section,
		opts:    opts,
		logger:  logging.ForGroup(opts.Logger, section),
		env:     make(map[string]string),
	}
}

// Section returns the test group name.
func (b *Base) Section() string {
	return b.section
}

// WillRun reports true; variants override it.
func (b *Base) WillRun() bool {
	return true
}

// Command returns a copy of the command vector.
func (b *Base) Command() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.cmd...)
}

// Env returns a copy of the environment overrides.
func (b *Base) Env() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	env := make(map[string]string, len(b.env))
	for k, v := range b.env {
		env[k] = v
	}
	return env
}

// SetEnv sets an environment override for the runner.
func (b *Base) SetEnv(name, value string) {
	b.mu.Lock()
	b.env[name] = value
	b.mu.Unlock()
}

// addDir registers a directory to release on cleanup.
func (b *Base) addDir(d *TempDir) {
	b.mu.Lock()
	b.dirs = append(b.dirs, d)
	b.mu.Unlock()
}

// Launch starts the runner in its own process group.
func (b *Base) Launch(ctx context.Context) error {
	if !b.claimLaunch() {
		return ErrAlreadyLaunched
	}
	return b.start(ctx)
}

// claimLaunch marks the controller launched. It reports false if it already
// was.
func (b *Base) claimLaunch() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.launched {
		return false
	}
	b.launched = true
	return true
}

// start runs the command vector. The caller has claimed the launch.
func (b *Base) start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(b.cmd) == 0 {
		return fmt.Errorf("launch %s: empty command", b.section)
	}

	cmd := exec.Command(b.cmd[0], b.cmd[1:]...)
	cmd.Env = mergeEnv(os.Environ(), b.env)
	cmd.WaitDelay = b.opts.WaitDelay

	if b.opts.BufferOutput {
		b.capture = logging.NewOutputCapture(b.section, b.logger, b.opts.Verbose)
		cmd.Stdout = b.capture
		cmd.Stderr = b.capture
	} else {
		cmd.Stdout = b.opts.Stdout
		cmd.Stderr = b.opts.Stderr
	}

	p, err := startProc(cmd)
	if err != nil {
		return fmt.Errorf("launch %s: %w", b.section, err)
	}
	b.p = p

	b.logger.Debug("group_launched", "pid", p.pid, "cmd", b.cmd[0], "args", len(b.cmd)-1)
	return nil
}

// Wait blocks until the runner exits and returns its exit status.
func (b *Base) Wait(ctx context.Context) (int, error) {
	b.mu.Lock()
	p, capture := b.p, b.capture
	b.mu.Unlock()

	if p == nil {
		return 0, ErrNotLaunched
	}

	select {
	case <-p.exited:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	if capture != nil {
		capture.Flush()
	}
	return p.exitStatus(), nil
}

// Output returns the captured output, or nil when not buffering.
func (b *Base) Output() []byte {
	b.mu.Lock()
	capture := b.capture
	b.mu.Unlock()

	if capture == nil {
		return nil
	}
	return capture.Bytes()
}

// Capture returns the live output capture, or nil.
func (b *Base) Capture() *logging.OutputCapture {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capture
}

// Pid returns the runner's pid, or 0 before launch.
func (b *Base) Pid() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.p == nil {
		return 0
	}
	return b.p.pid
}

// Cleanup kills a still-running runner and releases temporary directories.
func (b *Base) Cleanup() {
	b.cleanupOnce.Do(b.cleanup)
}

func (b *Base) cleanup() {
	b.mu.Lock()
	p := b.p
	dirs := b.dirs
	b.mu.Unlock()

	if p != nil {
		stopProc(b.logger, p, b.opts.KillSignal, b.opts.KillAttempts, b.opts.KillInterval)
	}

	for _, d := range dirs {
		if err := d.Release(); err != nil {
			b.logger.Warn("temp_dir_release_failed", "path", d.Path(), "error", err)
		}
	}
}

// stopProc kills a live process group and polls for it to exit.
func stopProc(logger *slog.Logger, p *proc, sig syscall.Signal, attempts int, interval time.Duration) {
	if !p.alive() {
		return
	}

	logger.Warn("cleanup_stale_process", "pid", p.pid)
	if err := p.signalGroup(sig); err != nil {
		// The process may have exited between the check and the signal.
		logger.Debug("cleanup_signal_failed", "pid", p.pid, "error", err)
	}

	if !p.awaitExit(attempts, interval) {
		logger.Warn("cleanup_failed", "pid", p.pid, "hint", "manual cleanup may be required")
	}
}
