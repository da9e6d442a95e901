package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-suite-runner/internal/coverage"
	"github.com/randomizedcoder/go-suite-runner/internal/process"
	"github.com/randomizedcoder/go-suite-runner/internal/stats"
	"github.com/randomizedcoder/go-suite-runner/internal/supervisor"
)

// InterruptedExitCode is returned when a concurrent run was interrupted
// and no summary was produced.
const InterruptedExitCode = 130

// Observer receives group lifecycle events. Calls may come from several
// goroutines.
type Observer interface {
	GroupStarted(section string)
	GroupFinished(res supervisor.Result)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Fast is the concurrency width: 1 runs groups one at a time in
	// order, 0 uses one worker per CPU, N uses a pool of N workers.
	Fast int

	Program      string // banner prefix, e.g. "IPython"
	RerunCommand string // rerun hint command, e.g. "iptest"

	Out       io.Writer // banners and summary
	Logger    *slog.Logger
	Observers []Observer

	// SysInfo is printed in the summary.
	SysInfo string

	// Coverage, when non-nil, merges the groups' coverage data after a
	// summarized run using CoverageMode.
	Coverage     *coverage.Service
	CoverageMode string
}

// Report is the result of a scheduler run.
type Report struct {
	// Results in report order: execution order when sequential,
	// completion order when concurrent.
	Results []supervisor.Result

	Failed []string
	NotRun []string

	// InterruptedGroups were stopped while running.
	InterruptedGroups []string

	Interrupted bool
	// Summarized is false when a concurrent run was interrupted and
	// returned without a summary.
	Summarized bool

	Elapsed   time.Duration
	Durations *stats.Durations

	Coverage    *coverage.Result
	CoverageErr error
}

// ExitCode returns the process exit status for the run.
func (r *Report) ExitCode() int {
	switch {
	case r.Interrupted && !r.Summarized:
		return InterruptedExitCode
	case r.Interrupted || len(r.Failed) > 0:
		return 1
	default:
		return 0
	}
}

// Scheduler runs prepared controllers and reports their results.
type Scheduler struct {
	opts SchedulerOptions

	// background tracks concurrent workers that may outlive Run after
	// an interrupt.
	background sync.WaitGroup
}

// NewScheduler creates a scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Program == "" {
		opts.Program = "Test"
	}
	if opts.RerunCommand == "" {
		opts.RerunCommand = opts.Program
	}
	return &Scheduler{opts: opts}
}

// Width returns the effective number of concurrent workers.
func (s *Scheduler) Width() int {
	if s.opts.Fast <= 0 {
		return runtime.NumCPU()
	}
	return s.opts.Fast
}

// Run drives every controller in toRun, reports notRun, prints the
// summary and merges coverage. Cancelling ctx interrupts the run. Every
// controller passed in is cleaned up, either by its driver or directly
// when it is never started.
func (s *Scheduler) Run(ctx context.Context, toRun, notRun []process.Controller) *Report {
	start := time.Now()
	report := &Report{Durations: stats.NewDurations()}

	fmt.Fprintln(s.opts.Out)
	if s.opts.Fast == 1 {
		s.runSequential(ctx, toRun, report)
	} else if !s.runConcurrent(ctx, toRun, report) {
		for _, c := range notRun {
			c.Cleanup()
		}
		return report
	}

	for _, c := range notRun {
		fmt.Fprintln(s.opts.Out, stats.GroupBanner(s.opts.Program, c.Section(), "NOT RUN"))
		report.NotRun = append(report.NotRun, c.Section())
		c.Cleanup()
	}

	report.Elapsed = time.Since(start)
	report.Summarized = true
	fmt.Fprint(s.opts.Out, stats.FormatSummary(stats.SummaryConfig{
		RerunCommand: s.opts.RerunCommand,
		Groups:       len(toRun),
		Failed:       report.Failed,
		Interrupted:  report.InterruptedGroups,
		Elapsed:      report.Elapsed,
		SysInfo:      s.opts.SysInfo,
		Durations:    report.Durations,
	}))

	// Data from groups that finished before an interrupt is still merged.
	if s.opts.Coverage != nil && report.Summarized {
		s.mergeCoverage(context.WithoutCancel(ctx), toRun, report)
	}
	return report
}

func (s *Scheduler) runSequential(ctx context.Context, toRun []process.Controller, report *Report) {
	for i, c := range toRun {
		fmt.Fprintln(s.opts.Out, stats.GroupLabel(s.opts.Program, c.Section()))

		res := s.drive(ctx, c)
		s.record(report, res)
		s.printFailure(res)

		if res.Outcome == supervisor.OutcomeInterrupted {
			fmt.Fprintln(s.opts.Out, "Interrupted")
			for _, rest := range toRun[i+1:] {
				rest.Cleanup()
			}
			return
		}
		fmt.Fprintln(s.opts.Out)
	}
}

// runConcurrent reports false when the run was interrupted and must end
// without a summary.
//
// Children run in their own process groups, so a terminal Ctrl-C never
// reaches them. Cancelling the shared ctx stands in for it: every worker
// still in flight is interrupted, not only the one whose result is read
// first.
func (s *Scheduler) runConcurrent(ctx context.Context, toRun []process.Controller, report *Report) bool {
	// Buffered so workers never block on a consumer that has returned.
	results := make(chan supervisor.Result, len(toRun))

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer close(results)

		var g errgroup.Group
		g.SetLimit(s.Width())
		for i, c := range toRun {
			if ctx.Err() != nil {
				for _, rest := range toRun[i:] {
					rest.Cleanup()
				}
				break
			}
			g.Go(func() error {
				results <- s.drive(ctx, c)
				return nil
			})
		}
		_ = g.Wait()
	}()

	for res := range results {
		banner := "OK"
		if res.Outcome.Failed() {
			banner = "FAILED"
		}
		fmt.Fprintln(s.opts.Out, stats.GroupBanner(s.opts.Program, res.Section, banner))
		s.record(report, res)
		s.printFailure(res)

		if res.Outcome == supervisor.OutcomeInterrupted {
			if len(res.Output) > 0 {
				fmt.Fprintln(s.opts.Out, string(res.Output))
			}
			fmt.Fprintln(s.opts.Out, "Interrupted")
			return false
		}
	}
	return true
}

// drive runs one controller through the driver and notifies observers.
func (s *Scheduler) drive(ctx context.Context, c process.Controller) supervisor.Result {
	for _, o := range s.opts.Observers {
		o.GroupStarted(c.Section())
	}
	return supervisor.Run(ctx, c, s.opts.Logger)
}

func (s *Scheduler) record(report *Report, res supervisor.Result) {
	report.Results = append(report.Results, res)
	switch res.Outcome {
	case supervisor.OutcomeInterrupted:
		report.Interrupted = true
		report.InterruptedGroups = append(report.InterruptedGroups, res.Section)
	case supervisor.OutcomeFailure, supervisor.OutcomeLaunchError:
		report.Failed = append(report.Failed, res.Section)
		report.Durations.Add(res.Section, res.Duration)
	default:
		report.Durations.Add(res.Section, res.Duration)
	}
	for _, o := range s.opts.Observers {
		o.GroupFinished(res)
	}
}

// printFailure prints a failed group's captured output and launch error.
func (s *Scheduler) printFailure(res supervisor.Result) {
	if res.Outcome != supervisor.OutcomeFailure && res.Outcome != supervisor.OutcomeLaunchError {
		return
	}
	if len(res.Output) > 0 {
		fmt.Fprintln(s.opts.Out, string(res.Output))
	}
	if res.Err != nil {
		fmt.Fprintf(s.opts.Out, "%s: could not launch test runner: %v\n", res.Section, res.Err)
	}
}

// coverageConfigurer is implemented by controllers that record coverage.
type coverageConfigurer interface {
	CoverageConfig() (coverage.RunConfig, bool)
}

func (s *Scheduler) mergeCoverage(ctx context.Context, toRun []process.Controller, report *Report) {
	var files []string
	for _, c := range toRun {
		if cc, ok := c.(coverageConfigurer); ok {
			if rc, ok := cc.CoverageConfig(); ok {
				files = append(files, rc.DataFile)
			}
		}
	}
	if len(files) == 0 {
		return
	}

	res, err := s.opts.Coverage.Merge(ctx, s.opts.CoverageMode, files)
	if err != nil {
		report.CoverageErr = err
		level := slog.LevelError
		if errors.Is(err, coverage.ErrNoData) {
			level = slog.LevelWarn
		}
		s.opts.Logger.Log(ctx, level, "coverage_merge_failed", "error", err)
		return
	}
	report.Coverage = &res
}

// Close waits for workers still cleaning up after an interrupted
// concurrent run.
func (s *Scheduler) Close() {
	s.background.Wait()
}
