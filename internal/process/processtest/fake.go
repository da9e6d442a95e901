// Package processtest provides a scriptable process.Controller for tests.
package processtest

import (
	"context"
	"sync"
	"time"

	"github.com/randomizedcoder/go-suite-runner/internal/process"
)

// Fake is an in-memory controller. Zero values launch successfully and
// exit 0 immediately.
type Fake struct {
	Name      string
	Skip      bool  // WillRun reports false
	LaunchErr error // returned by Launch
	Status    int   // returned by Wait
	Out       []byte
	Delay     time.Duration // Wait sleeps this long (interruptible)
	Block     bool          // Wait blocks until Release or ctx is done
	Panic     any           // Wait panics with this value when non-nil

	// OnLaunch runs at the start of Launch; OnWait at the start of Wait.
	OnLaunch func()
	OnWait   func()

	mu       sync.Mutex
	launches int
	waits    int
	cleanups int
	launched bool
	release  chan struct{}
	relOnce  sync.Once
}

var _ process.Controller = (*Fake)(nil)

// New creates a fake that exits with status.
func New(name string, status int) *Fake {
	return &Fake{Name: name, Status: status}
}

func (f *Fake) Section() string { return f.Name }

func (f *Fake) WillRun() bool { return !f.Skip }

func (f *Fake) Launch(ctx context.Context) error {
	if f.OnLaunch != nil {
		f.OnLaunch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches++
	if f.launched {
		return process.ErrAlreadyLaunched
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.LaunchErr != nil {
		return f.LaunchErr
	}
	f.launched = true
	return nil
}

func (f *Fake) Wait(ctx context.Context) (int, error) {
	f.mu.Lock()
	f.waits++
	launched := f.launched
	f.mu.Unlock()

	if !launched {
		return 0, process.ErrNotLaunched
	}
	if f.OnWait != nil {
		f.OnWait()
	}
	if f.Panic != nil {
		panic(f.Panic)
	}
	if f.Block {
		select {
		case <-f.releaseCh():
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.Status, nil
}

func (f *Fake) Cleanup() {
	f.mu.Lock()
	f.cleanups++
	f.mu.Unlock()
}

func (f *Fake) Output() []byte { return f.Out }

// Release unblocks a Block-ing Wait.
func (f *Fake) Release() {
	f.relOnce.Do(func() { close(f.releaseCh()) })
}

func (f *Fake) releaseCh() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.release == nil {
		f.release = make(chan struct{})
	}
	return f.release
}

// Launches returns the number of Launch calls.
func (f *Fake) Launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches
}

// Waits returns the number of Wait calls.
func (f *Fake) Waits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waits
}

// Cleanups returns the number of Cleanup calls.
func (f *Fake) Cleanups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanups
}
