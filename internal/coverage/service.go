package coverage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/randomizedcoder/go-suite-runner/internal/catalog"
)

// Report modes.
const (
	ModeData = "data"
	ModeHTML = "html"
	ModeXML  = "xml"
)

// ErrNoData is returned when no group produced a coverage data file.
var ErrNoData = errors.New("no coverage data files found")

// DefaultLockTimeout bounds the wait for another merge in the same
// directory.
const DefaultLockTimeout = 5 * time.Minute

// Service combines per-group coverage data and renders reports by running
// the catalog's coverage commands.
type Service struct {
	Dir         string
	Spec        catalog.Coverage
	Logger      *slog.Logger
	Out         io.Writer // progress messages
	LockTimeout time.Duration

	run func(ctx context.Context, dir string, argv []string) ([]byte, error)
}

// NewService creates a merge service operating in dir.
func NewService(dir string, spec catalog.Coverage, logger *slog.Logger, out io.Writer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &Service{
		Dir:         dir,
		Spec:        spec,
		Logger:      logger,
		Out:         out,
		LockTimeout: DefaultLockTimeout,
		run:         runCommand,
	}
}

func runCommand(ctx context.Context, dir string, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Result describes what a merge produced.
type Result struct {
	DataFile string
	Inputs   []string
	HTMLDir  string
	XMLFile  string
}

// Merge combines dataFiles (missing ones are skipped) into the catalog's
// data file and, for ModeHTML or ModeXML, writes the report.
func (s *Service) Merge(ctx context.Context, mode string, dataFiles []string) (Result, error) {
	var res Result
	if len(s.Spec.Combine) == 0 {
		return res, errors.New("catalog has no coverage combine command")
	}

	for _, f := range dataFiles {
		if _, err := os.Stat(f); err == nil {
			res.Inputs = append(res.Inputs, f)
		} else {
			s.Logger.Debug("coverage_data_missing", "file", f)
		}
	}
	if len(res.Inputs) == 0 {
		return res, ErrNoData
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.LockTimeout)
	defer cancel()
	fl, err := acquireLock(lockCtx, filepath.Join(s.Dir, LockName))
	if err != nil {
		return res, err
	}
	defer releaseLock(s.Logger, fl)

	res.DataFile = s.path(orDefault(s.Spec.DataFile, ".coverage"))
	vars := map[string]string{
		"data_file": res.DataFile,
		"html_dir":  s.path(orDefault(s.Spec.HTMLDir, "htmlcov")),
		"xml_file":  s.path(orDefault(s.Spec.XMLFile, "coverage.xml")),
	}

	combine := catalog.ExpandList(s.Spec.Combine, vars, map[string][]string{"inputs": res.Inputs})
	if err := s.exec(ctx, "combine", combine); err != nil {
		return res, err
	}

	switch mode {
	case ModeHTML:
		if len(s.Spec.HTML) == 0 {
			return res, errors.New("catalog has no coverage html command")
		}
		res.HTMLDir = vars["html_dir"]
		if err := os.RemoveAll(res.HTMLDir); err != nil {
			return res, fmt.Errorf("remove old coverage report: %w", err)
		}
		fmt.Fprintf(s.Out, "Writing HTML coverage report to %s/ ... ", res.HTMLDir)
		if err := s.exec(ctx, "html", catalog.Expand(s.Spec.HTML, vars)); err != nil {
			fmt.Fprintln(s.Out, "failed.")
			return res, err
		}
		fmt.Fprintln(s.Out, "done.")

	case ModeXML:
		if len(s.Spec.XML) == 0 {
			return res, errors.New("catalog has no coverage xml command")
		}
		res.XMLFile = vars["xml_file"]
		if err := s.exec(ctx, "xml", catalog.Expand(s.Spec.XML, vars)); err != nil {
			return res, err
		}
		fmt.Fprintf(s.Out, "Wrote XML coverage report to %s\n", res.XMLFile)
	}

	return res, nil
}

func (s *Service) exec(ctx context.Context, step string, argv []string) error {
	s.Logger.Debug("coverage_step", "step", step, "cmd", argv[0])
	out, err := s.run(ctx, s.Dir, argv)
	if err != nil {
		return fmt.Errorf("coverage %s: %w: %s", step, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (s *Service) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	p, err := filepath.Abs(filepath.Join(s.Dir, name))
	if err != nil {
		return filepath.Join(s.Dir, name)
	}
	return p
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
