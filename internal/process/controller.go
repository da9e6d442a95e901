// Package process runs test groups as isolated child processes.
//
// A Controller owns one test-runner subprocess together with the private
// environment and temporary directories it runs in. Controllers are launched
// at most once, waited on, and cleaned up exactly once; cleanup kills any
// leftover process group before removing directories.
package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"
)

// Controller is one test group's runner process.
type Controller interface {
	// Section returns the test group name.
	Section() string

	// WillRun reports whether the group's prerequisites are met.
	WillRun() bool

	// Launch starts the runner. It may be called at most once.
	Launch(ctx context.Context) error

	// Wait blocks until the runner exits and returns its exit status.
	// Cancelling ctx returns ctx.Err() without killing the process.
	Wait(ctx context.Context) (int, error)

	// Cleanup kills a still-running process and removes temporary
	// directories. It is idempotent and safe before Launch.
	Cleanup()

	// Output returns the captured stdout+stderr, or nil when output was
	// not buffered.
	Output() []byte
}

var (
	// ErrAlreadyLaunched is returned by a second Launch.
	ErrAlreadyLaunched = errors.New("process already launched")

	// ErrNotLaunched is returned by Wait before a successful Launch.
	ErrNotLaunched = errors.New("process not launched")

	// ErrServerExited is returned when a companion server exits before
	// announcing its port.
	ErrServerExited = errors.New("server exited before announcing its port")

	// ErrServerTimeout is returned when a companion server does not
	// announce its port in time.
	ErrServerTimeout = errors.New("timed out waiting for server port")
)

// Options configure a controller.
type Options struct {
	// BufferOutput captures the runner's combined output instead of
	// passing it through to Stdout/Stderr.
	BufferOutput bool

	// Verbose logs each captured line.
	Verbose bool

	Logger *slog.Logger

	// Stdout and Stderr receive runner output when not buffering.
	Stdout io.Writer
	Stderr io.Writer

	// ResultDir is where per-group result and coverage files are written.
	ResultDir string

	// Cleanup polling after the kill signal.
	KillAttempts int
	KillInterval time.Duration
	KillSignal   syscall.Signal

	// ServerTimeout bounds how long a companion server may take to
	// announce its port.
	ServerTimeout time.Duration

	// WaitDelay bounds how long Wait waits for output pipes held open by
	// orphaned grandchildren after the runner exits.
	WaitDelay time.Duration
}

// Default option values.
const (
	DefaultKillAttempts  = 10
	DefaultKillInterval  = 100 * time.Millisecond
	DefaultServerTimeout = 60 * time.Second
	DefaultWaitDelay     = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.ResultDir == "" {
		o.ResultDir = "."
	}
	if o.KillAttempts <= 0 {
		o.KillAttempts = DefaultKillAttempts
	}
	if o.KillInterval <= 0 {
		o.KillInterval = DefaultKillInterval
	}
	if o.KillSignal == 0 {
		o.KillSignal = syscall.SIGKILL
	}
	if o.ServerTimeout <= 0 {
		o.ServerTimeout = DefaultServerTimeout
	}
	if o.WaitDelay <= 0 {
		o.WaitDelay = DefaultWaitDelay
	}
	return o
}
