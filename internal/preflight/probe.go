package preflight

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-suite-runner/internal/catalog"
)

// ProbeTimeout bounds each dependency probe command.
const ProbeTimeout = 15 * time.Second

// Prober decides whether dependencies are available.
type Prober struct {
	// Limit is the number of probes run at once (<= 0 means 8).
	Limit  int
	Logger *slog.Logger

	lookPath func(string) (string, error)
	run      func(ctx context.Context, argv []string) error
}

// NewProber creates a prober that checks PATH and runs probe commands.
func NewProber(logger *slog.Logger) *Prober {
	return &Prober{
		Limit:    8,
		Logger:   logger,
		lookPath: exec.LookPath,
		run:      runProbe,
	}
}

func runProbe(ctx context.Context, argv []string) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()
	return exec.CommandContext(ctx, argv[0], argv[1:]...).Run()
}

// Probe checks every dependency concurrently and returns the "have" map.
// A probe that fails for any reason marks the dependency missing.
func (p *Prober) Probe(ctx context.Context, deps []catalog.Dependency) map[string]bool {
	limit := p.Limit
	if limit <= 0 {
		limit = 8
	}

	var (
		mu   sync.Mutex
		have = make(map[string]bool, len(deps))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, dep := range deps {
		g.Go(func() error {
			ok := p.available(ctx, dep)
			mu.Lock()
			have[dep.Name] = ok
			mu.Unlock()
			if p.Logger != nil {
				p.Logger.Debug("dependency_probed", "name", dep.Name, "available", ok)
			}
			return nil
		})
	}
	_ = g.Wait()

	return have
}

func (p *Prober) available(ctx context.Context, dep catalog.Dependency) bool {
	if dep.Binary != "" {
		if _, err := p.lookPath(dep.Binary); err != nil {
			return false
		}
	}
	if len(dep.Probe) > 0 {
		if ctx.Err() != nil {
			return false
		}
		return p.run(ctx, dep.Probe) == nil
	}
	return dep.Binary != ""
}
