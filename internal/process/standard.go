package process

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/randomizedcoder/go-suite-runner/internal/catalog"
	"github.com/randomizedcoder/go-suite-runner/internal/coverage"
)

// Standard runs an interpreter-based test group in an isolated config home
// and working directory.
type Standard struct {
	*Base

	cat        *catalog.Catalog
	workingDir *TempDir

	mu        sync.Mutex
	bootstrap string
	args      []string
	xunitFile string
	coverage  *coverage.RunConfig
}

var _ Controller = (*Standard)(nil)

// NewStandard creates a controller for the named group. Both private
// directories are created immediately and released by Cleanup.
func NewStandard(cat *catalog.Catalog, section string, opts Options) (*Standard, error) {
	s := &Standard{
		Base:      newBase(section, opts),
		cat:       cat,
		bootstrap: cat.Interpreter.Bootstrap,
	}

	configHome, err := NewTempDir("suite-" + section + "-home-")
	if err != nil {
		return nil, err
	}
	s.addDir(configHome)

	s.workingDir, err = NewTempDir("suite-" + section + "-work-")
	if err != nil {
		s.Cleanup()
		return nil, err
	}
	s.addDir(s.workingDir)

	setEnvIf(s.Base, cat.Env.ConfigHome, configHome.Path())
	setEnvIf(s.Base, cat.Env.WorkingDir, s.workingDir.Path())
	// Keeps the user's own plotting config out of the tests.
	setEnvIf(s.Base, cat.Env.PlotConfig, s.workingDir.Path())

	s.cmd = s.command()
	return s, nil
}

func setEnvIf(b *Base, name, value string) {
	if name != "" {
		b.SetEnv(name, value)
	}
}

// WillRun reports whether the catalog allows the group to run.
func (s *Standard) WillRun() bool {
	return s.cat.WillRun(s.section)
}

// WorkingDir returns the private working directory.
func (s *Standard) WorkingDir() string {
	return s.workingDir.Path()
}

// EnableXunit makes the runner write an xunit result file named after the
// group in the result directory.
func (s *Standard) EnableXunit() error {
	file, err := filepath.Abs(filepath.Join(s.opts.ResultDir, s.section+".xunit.xml"))
	if err != nil {
		return fmt.Errorf("xunit file: %w", err)
	}

	s.mu.Lock()
	s.xunitFile = file
	s.args = append(s.args, catalog.Expand(s.cat.Interpreter.XunitArgs, map[string]string{"file": file})...)
	s.mu.Unlock()

	s.refreshCommand()
	return nil
}

// XunitFile returns the xunit result path, or "" when not enabled.
func (s *Standard) XunitFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.xunitFile
}

// EnableCoverage writes the group's coverage run configuration into its
// working directory and makes the runner start coverage measurement.
func (s *Standard) EnableCoverage() (coverage.RunConfig, error) {
	dataFile, err := filepath.Abs(filepath.Join(s.opts.ResultDir, s.section+coverage.DataSuffix))
	if err != nil {
		return coverage.RunConfig{}, fmt.Errorf("coverage data file: %w", err)
	}

	rc := coverage.RunConfig{
		Path:     filepath.Join(s.workingDir.Path(), coverage.RunConfigName),
		DataFile: dataFile,
		Sources:  s.cat.Includes(s.section),
	}
	if err := rc.Write(); err != nil {
		return coverage.RunConfig{}, err
	}

	setEnvIf(s.Base, s.cat.Env.CoverageStart, rc.Path)

	s.mu.Lock()
	s.coverage = &rc
	s.bootstrap = s.cat.Interpreter.CoverageBootstrap + s.bootstrap
	s.mu.Unlock()

	s.refreshCommand()
	return rc, nil
}

// CoverageConfig returns the coverage run configuration, if enabled.
func (s *Standard) CoverageConfig() (coverage.RunConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coverage == nil {
		return coverage.RunConfig{}, false
	}
	return *s.coverage, true
}

// AddArgs appends arguments passed through to the test runner.
func (s *Standard) AddArgs(args ...string) {
	s.mu.Lock()
	s.args = append(s.args, args...)
	s.mu.Unlock()

	s.refreshCommand()
}

// Launch starts the runner.
func (s *Standard) Launch(ctx context.Context) error {
	s.refreshCommand()
	return s.Base.Launch(ctx)
}

func (s *Standard) refreshCommand() {
	cmd := s.command()
	s.Base.mu.Lock()
	s.Base.cmd = cmd
	s.Base.mu.Unlock()
}

// command builds "<interpreter...> -c <bootstrap> <section> <args...>".
func (s *Standard) command() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := append([]string(nil), s.cat.Interpreter.Command...)
	cmd = append(cmd, "-c", s.bootstrap, s.section)
	return append(cmd, s.args...)
}
