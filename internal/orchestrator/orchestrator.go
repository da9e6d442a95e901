// Package orchestrator selects test groups, schedules their controllers and
// wires the run's reporting: summary, coverage, metrics and dashboard.
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/randomizedcoder/go-suite-runner/internal/catalog"
	"github.com/randomizedcoder/go-suite-runner/internal/config"
	"github.com/randomizedcoder/go-suite-runner/internal/coverage"
	"github.com/randomizedcoder/go-suite-runner/internal/metrics"
	"github.com/randomizedcoder/go-suite-runner/internal/preflight"
	"github.com/randomizedcoder/go-suite-runner/internal/process"
	"github.com/randomizedcoder/go-suite-runner/internal/tui"
)

// Orchestrator coordinates all components for a suite run.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	version string

	out    io.Writer
	errOut io.Writer

	metrics       *metrics.Collector
	metricsServer *metrics.Server

	// isTerminal reports whether the dashboard can take over stdout.
	isTerminal func() bool
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, version string) *Orchestrator {
	return &Orchestrator{
		config:  cfg,
		logger:  logger,
		version: version,
		out:     os.Stdout,
		errOut:  os.Stderr,
		isTerminal: func() bool {
			return isatty.IsTerminal(os.Stdout.Fd())
		},
	}
}

// Run executes the suite and returns the process exit code. Errors are
// configuration or environment problems found before any group ran.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	cfg := o.config

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return 1, err
	}

	width := NewScheduler(SchedulerOptions{Fast: cfg.Fast}).Width()

	result := preflight.RunAll(ctx, width, cat.Interpreter.Command, cfg.WorkDir)
	if !result.Passed || cfg.Verbose {
		preflight.PrintResults(o.errOut, result)
	}
	if !result.Passed {
		return 1, fmt.Errorf("preflight checks failed")
	}

	o.logger.Debug("probing_dependencies", "count", len(cat.Dependencies))
	cat.SetAvailability(preflight.NewProber(o.logger).Probe(ctx, cat.Dependencies))

	toRun, notRun, err := Prepare(cat, PrepareConfig{
		Groups:    cfg.Groups,
		All:       cfg.All,
		Xunit:     cfg.Xunit,
		Coverage:  cfg.Coverage != config.CoverageOff,
		ExtraArgs: cfg.ExtraArgs,
		Process: process.Options{
			BufferOutput:  cfg.BufferOutput || cfg.ForceBuffer(),
			Verbose:       cfg.Verbose,
			Logger:        o.logger,
			ResultDir:     cfg.WorkDir,
			KillAttempts:  cfg.KillAttempts,
			KillInterval:  cfg.KillInterval,
			ServerTimeout: cfg.ServerTimeout,
		},
	}, o.logger)
	if err != nil {
		return 1, err
	}

	o.logger.Info("run_starting",
		"groups", len(toRun),
		"not_run", len(notRun),
		"workers", width,
		"catalog", cat.Source,
	)

	o.metrics = metrics.NewCollector(metrics.CollectorConfig{
		Version:        o.version,
		Catalog:        cat.Source,
		Workers:        width,
		RuntimeMetrics: cfg.MetricsAddr != "",
	})
	o.metrics.SetPlanned(len(toRun), len(notRun))

	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, o.metrics.Registry(), o.logger)
		if err := o.metricsServer.Start(); err != nil {
			for _, c := range append(toRun, notRun...) {
				c.Cleanup()
			}
			return 1, fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer o.shutdownMetricsServer()
	}

	useTUI := cfg.TUIEnabled && o.isTerminal()
	if cfg.TUIEnabled && !useTUI {
		o.logger.Warn("tui_disabled", "reason", "stdout is not a terminal")
	}

	// The dashboard owns the terminal, so scheduler and coverage output is
	// held back and printed once it has exited.
	out := o.out
	var held bytes.Buffer
	if useTUI {
		out = &held
	}

	opts := SchedulerOptions{
		Fast:         cfg.Fast,
		Program:      cat.ProgramName(),
		RerunCommand: cat.RerunCommand,
		Out:          out,
		Logger:       o.logger,
		Observers:    []Observer{o.metrics},
		SysInfo:      o.sysInfo(ctx, cat).Report(),
	}
	if cfg.Coverage != config.CoverageOff {
		opts.Coverage = coverage.NewService(cfg.WorkDir, cat.Coverage, o.logger, out)
		opts.CoverageMode = cfg.Coverage
	}

	var report *Report
	if useTUI {
		report = o.runWithDashboard(ctx, opts, width, toRun, notRun)
		fmt.Fprint(o.out, held.String())
	} else {
		sched := NewScheduler(opts)
		report = sched.Run(ctx, toRun, notRun)
		sched.Close()
	}

	if report.Coverage != nil || report.CoverageErr != nil {
		o.metrics.RecordCoverage(report.CoverageErr)
	}
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile, o.metrics.Registry()); err != nil {
			o.logger.Warn("metrics_file_failed", "path", cfg.MetricsFile, "error", err)
		}
	}

	o.logger.Info("run_complete",
		"failed", len(report.Failed),
		"interrupted", report.Interrupted,
		"elapsed", report.Elapsed,
		"peak_active", o.metrics.PeakActive(),
	)
	return report.ExitCode(), nil
}

// runWithDashboard runs the scheduler behind the live dashboard. The
// first interrupt key cancels the run; the dashboard stays up until the
// scheduler has cleaned up.
func (o *Orchestrator) runWithDashboard(ctx context.Context, opts SchedulerOptions, width int, toRun, notRun []process.Controller) *Report {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(tui.New(tui.Config{
		Program:     opts.Program,
		Groups:      sections(toRun),
		NotRun:      sections(notRun),
		Workers:     width,
		OnInterrupt: cancel,
	}), tea.WithAltScreen(), tea.WithContext(ctx))
	notifier := tui.NewNotifier(program)
	opts.Observers = append(opts.Observers, notifier)

	sched := NewScheduler(opts)
	done := make(chan *Report, 1)
	go func() {
		r := sched.Run(runCtx, toRun, notRun)
		sched.Close()
		done <- r
		notifier.Done()
	}()

	if _, err := program.Run(); err != nil {
		o.logger.Debug("tui_exited", "error", err)
	}
	// Leaving the dashboard early interrupts the run.
	cancel()
	return <-done
}

func (o *Orchestrator) sysInfo(ctx context.Context, cat *catalog.Catalog) preflight.SysInfo {
	si := preflight.CollectSysInfo(o.version)
	si.Catalog = cat.Source
	if len(cat.Interpreter.Command) > 0 {
		si.Interpreter = cat.Interpreter.Command[0]
		if v, err := preflight.InterpreterVersion(ctx, cat.Interpreter.Command); err == nil {
			si.InterpreterVer = v
		}
	}
	si.Available, si.Missing = cat.Availability()
	return si
}

func (o *Orchestrator) shutdownMetricsServer() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.metricsServer.Shutdown(ctx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

// Metrics returns the metrics collector, available once Run has started.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

func sections(cs []process.Controller) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Section()
	}
	return out
}
