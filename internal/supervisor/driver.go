package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-suite-runner/internal/logging"
	"github.com/randomizedcoder/go-suite-runner/internal/process"
)

// LaunchFailedStatus is the status recorded when a runner cannot start.
const LaunchFailedStatus = 1

// InterruptedStatus is the status recorded for an interrupted run.
var InterruptedStatus = -int(syscall.SIGINT)

// Result is the outcome of driving one controller.
type Result struct {
	Controller process.Controller
	Section    string
	Outcome    Outcome
	Status     int
	Err        error // launch error, if any
	Duration   time.Duration
	Output     []byte
}

// Run launches c, waits for it and always cleans it up. Cancelling ctx
// interrupts the wait; the controller's process is then killed by cleanup.
func Run(ctx context.Context, c process.Controller, logger *slog.Logger) (res Result) {
	logger = logging.ForGroup(logger, c.Section())
	res = Result{Controller: c, Section: c.Section()}

	start := time.Now()
	defer func() {
		c.Cleanup()
		res.Duration = time.Since(start)
		res.Output = c.Output()
	}()

	if ctx.Err() != nil {
		res.Outcome, res.Status = OutcomeInterrupted, InterruptedStatus
		return res
	}

	if err := c.Launch(ctx); err != nil {
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			res.Outcome, res.Status = OutcomeInterrupted, InterruptedStatus
			return res
		}
		logger.Error("group_launch_failed", "error", err)
		res.Outcome, res.Status, res.Err = OutcomeLaunchError, LaunchFailedStatus, err
		return res
	}

	status, err := c.Wait(ctx)
	if err != nil {
		if ctx.Err() == nil {
			// Wait only fails on cancellation or misuse.
			logger.Error("group_wait_failed", "error", err)
			res.Outcome, res.Status, res.Err = OutcomeLaunchError, LaunchFailedStatus, err
			return res
		}
		res.Outcome, res.Status = OutcomeInterrupted, InterruptedStatus
		return res
	}

	res.Status = status
	if status == 0 {
		res.Outcome = OutcomeSuccess
	} else {
		res.Outcome = OutcomeFailure
	}
	logger.Debug("group_exited", "status", status, "duration", time.Since(start))
	return res
}
