// Package main provides the go-suite-runner CLI entry point.
//
// go-suite-runner runs a project's test suite as a set of test groups, each
// in its own subprocess, sequentially or through a bounded worker pool, and
// prints a per-group and overall summary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/randomizedcoder/go-suite-runner/internal/config"
	"github.com/randomizedcoder/go-suite-runner/internal/logging"
	"github.com/randomizedcoder/go-suite-runner/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-suite-runner
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-suite-runner %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}
	if cfg.Version {
		fmt.Printf("go-suite-runner %s\n", version)
		return 0
	}

	// The dashboard owns the terminal; logs would corrupt it.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "warn", cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	logger.Info("starting",
		"version", version,
		"groups", cfg.Groups,
		"fast", cfg.Fast,
		"catalog", cfg.CatalogPath,
		"coverage", cfg.Coverage,
		"metrics_addr", cfg.MetricsAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := orchestrator.New(cfg, logger, version).Run(ctx)
	if err != nil {
		logger.Error("orchestrator_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return code
}
