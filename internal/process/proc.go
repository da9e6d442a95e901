package process

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// proc is a started child process running in its own process group.
// A single goroutine owns cmd.Wait; everyone else watches exited.
type proc struct {
	cmd    *exec.Cmd
	pid    int
	exited chan struct{} // closed once cmd.ProcessState is set
}

// startProc starts cmd in a new process group.
func startProc(cmd *exec.Cmd) (*proc, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &proc{
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		exited: make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

// alive reports whether the process has not yet been reaped.
func (p *proc) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// exitStatus returns the exit status. Only valid after exited is closed.
func (p *proc) exitStatus() int {
	return stateExitCode(p.cmd.ProcessState)
}

// stateExitCode maps a finished process to its exit status, 128+signal for
// a signalled process. A missing state means Wait never reaped it.
func stateExitCode(ps *os.ProcessState) int {
	if ps == nil {
		return 1
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ps.ExitCode()
}

// signalGroup sends sig to the whole process group, falling back to the
// process itself.
func (p *proc) signalGroup(sig syscall.Signal) error {
	if pgid, err := syscall.Getpgid(p.pid); err == nil && pgid == p.pid {
		return syscall.Kill(-pgid, sig)
	}
	return p.cmd.Process.Signal(sig)
}

// awaitExit polls for exit every interval, up to attempts times. Reports
// whether the process exited.
func (p *proc) awaitExit(attempts int, interval time.Duration) bool {
	backoff := wait.Backoff{
		Duration: interval,
		Factor:   1,
		Steps:    attempts,
	}
	err := wait.ExponentialBackoff(backoff, func() (bool, error) {
		return !p.alive(), nil
	})
	if err != nil && !wait.Interrupted(err) {
		return false
	}
	return !p.alive()
}
