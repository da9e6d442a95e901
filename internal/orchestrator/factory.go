package orchestrator

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/randomizedcoder/go-suite-runner/internal/catalog"
	"github.com/randomizedcoder/go-suite-runner/internal/process"
)

// PrepareConfig selects and configures the test groups of a run.
type PrepareConfig struct {
	Groups    []string // empty = every group in the catalog
	All       bool     // keep slow groups when no groups are named
	Xunit     bool
	Coverage  bool
	ExtraArgs []string

	Process process.Options
}

// Prepare builds one controller per selected group, standard groups first
// and then server-backed groups, and splits them by WillRun. Unknown group
// names are logged and ignored. Every returned controller must be cleaned
// up by the caller; on error nothing is left to clean up.
func Prepare(cat *catalog.Catalog, cfg PrepareConfig, logger *slog.Logger) (toRun, notRun []process.Controller, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	standard := cat.Names(catalog.KindStandard)
	server := cat.Names(catalog.KindServer)

	if len(cfg.Groups) > 0 {
		for _, g := range cfg.Groups {
			if !slices.Contains(standard, g) && !slices.Contains(server, g) {
				logger.Warn("unknown_group", "group", g)
			}
		}
		standard = keep(cfg.Groups, standard)
		server = keep(cfg.Groups, server)
	} else if !cfg.All {
		for _, s := range cat.Sections {
			if s.Slow {
				cat.Disable(s.Name)
			}
		}
	}

	var all []process.Controller
	fail := func(e error) ([]process.Controller, []process.Controller, error) {
		for _, c := range all {
			c.Cleanup()
		}
		return nil, nil, e
	}

	for _, name := range standard {
		c, err := process.NewStandard(cat, name, cfg.Process)
		if err != nil {
			return fail(fmt.Errorf("group %s: %w", name, err))
		}
		all = append(all, c)
		if err := configureStandard(c, cfg); err != nil {
			return fail(fmt.Errorf("group %s: %w", name, err))
		}
	}

	for _, name := range server {
		c, err := process.NewServerBacked(cat, name, cfg.Process)
		if err != nil {
			return fail(fmt.Errorf("group %s: %w", name, err))
		}
		all = append(all, c)
	}

	for _, c := range all {
		if c.WillRun() {
			toRun = append(toRun, c)
		} else {
			notRun = append(notRun, c)
		}
	}
	return toRun, notRun, nil
}

func configureStandard(c *process.Standard, cfg PrepareConfig) error {
	if cfg.Xunit {
		if err := c.EnableXunit(); err != nil {
			return err
		}
	}
	if cfg.Coverage {
		if _, err := c.EnableCoverage(); err != nil {
			return err
		}
	}
	if len(cfg.ExtraArgs) > 0 {
		c.AddArgs(cfg.ExtraArgs...)
	}
	return nil
}

// keep returns the names in requested that are also in known, in the
// requested order and without duplicates.
func keep(requested, known []string) []string {
	var out []string
	for _, g := range requested {
		if slices.Contains(known, g) && !slices.Contains(out, g) {
			out = append(out, g)
		}
	}
	return out
}
