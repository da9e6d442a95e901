package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// fastValue backs -j/-fast. The flag takes an optional value: a bare -j
// means one worker per CPU (0), -j=N a pool of N.
type fastValue struct {
	n *int
}

func (f fastValue) String() string {
	if f.n == nil {
		return "1"
	}
	return strconv.Itoa(*f.n)
}

func (f fastValue) Set(value string) error {
	if value == "true" {
		*f.n = 0
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid worker count %q", value)
	}
	*f.n = n
	return nil
}

func (f fastValue) IsBoolFlag() bool { return true }

// coverageValue backs -coverage. A bare -coverage keeps raw data only;
// -coverage=html or -coverage=xml also renders a report.
type coverageValue struct {
	mode *string
}

func (c coverageValue) String() string {
	if c.mode == nil {
		return ""
	}
	return *c.mode
}

func (c coverageValue) Set(value string) error {
	switch value {
	case "true":
		*c.mode = CoverageData
	case "false":
		*c.mode = CoverageOff
	default:
		*c.mode = value
	}
	return nil
}

func (c coverageValue) IsBoolFlag() bool { return true }

// optionalValueFlags lists flags whose value may follow as a separate
// argument ("-j 4", "-coverage html"), together with a predicate that
// accepts that argument.
var optionalValueFlags = map[string]func(string) bool{
	"j":        isInt,
	"fast":     isInt,
	"coverage": func(s string) bool { return s == CoverageHTML || s == CoverageXML },
}

func isInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// joinOptionalValues rewrites "-j 4" into "-j=4" so the standard flag
// package can treat the optional-value flags as boolean-style flags.
func joinOptionalValues(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name := strings.TrimLeft(arg, "-")
		accept, ok := optionalValueFlags[name]
		if ok && strings.HasPrefix(arg, "-") && i+1 < len(args) && accept(args[i+1]) {
			out = append(out, arg+"="+args[i+1])
			i++
			continue
		}
		out = append(out, arg)
	}
	return out
}

// splitExtraArgs separates arguments after a literal "--"; those are passed
// through to every standard test runner.
func splitExtraArgs(args []string) (own, extra []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], append([]string(nil), args[i+1:]...)
		}
	}
	return args, nil
}

// ParseFlags parses command-line arguments (without the program name) and
// returns a Config. Flags and group names may be interleaved.
func ParseFlags(args []string, stderr io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := newFlagSet(cfg, stderr)

	own, extra := splitExtraArgs(args)
	cfg.ExtraArgs = extra

	rest := joinOptionalValues(own)
	for {
		if err := fs.Parse(rest); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, err
			}
			return nil, fmt.Errorf("parse flags: %w", err)
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		cfg.Groups = append(cfg.Groups, rest[0])
		rest = rest[1:]
	}

	return cfg, nil
}

func newFlagSet(cfg *Config, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("go-suite-runner", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.Usage = func() {
		fmt.Fprintf(stderr, `go-suite-runner - run test groups in isolated subprocesses

Usage:
  go-suite-runner [flags] [group ...] [-- runner-args ...]

Selection:
`)
		printFlagCategory(fs, stderr, []string{"all", "catalog", "workdir"})

		fmt.Fprintf(stderr, "\nScheduling:\n")
		printFlagCategory(fs, stderr, []string{"j", "fast", "buffer"})

		fmt.Fprintf(stderr, "\nReports:\n")
		printFlagCategory(fs, stderr, []string{"xunit", "coverage"})

		fmt.Fprintf(stderr, "\nProcess Cleanup:\n")
		printFlagCategory(fs, stderr, []string{"kill-attempts", "kill-interval", "server-timeout"})

		fmt.Fprintf(stderr, "\nObservability:\n")
		printFlagCategory(fs, stderr, []string{"v", "log-format", "metrics", "metrics-file", "tui"})

		fmt.Fprintf(stderr, `
Examples:
  # Run every available group, one at a time
  go-suite-runner

  # Run two groups with 4 workers and an HTML coverage report
  go-suite-runner -j 4 -coverage html core lib

  # Pass extra arguments to each runner
  go-suite-runner utils -- -v

`)
	}

	fast := fastValue{n: &cfg.Fast}
	fs.Var(fast, "j", "Run groups in parallel; bare -j uses one worker per CPU")
	fs.Var(fast, "fast", "Same as -j")
	fs.BoolVar(&cfg.All, "all", cfg.All, "Include slow groups not run by default")
	fs.BoolVar(&cfg.Xunit, "xunit", cfg.Xunit, "Produce an xunit XML result file per group")
	fs.Var(coverageValue{mode: &cfg.Coverage}, "coverage", `Measure coverage; "html" or "xml" also writes a report`)
	fs.BoolVar(&cfg.BufferOutput, "buffer", cfg.BufferOutput, "Capture group output in sequential mode")

	fs.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "Path to a YAML group catalog (default: built-in)")
	fs.StringVar(&cfg.WorkDir, "workdir", cfg.WorkDir, "Directory for result and coverage files")

	fs.IntVar(&cfg.KillAttempts, "kill-attempts", cfg.KillAttempts, "Polls for a killed process to exit")
	fs.DurationVar(&cfg.KillInterval, "kill-interval", cfg.KillInterval, "Interval between kill polls")
	fs.DurationVar(&cfg.ServerTimeout, "server-timeout", cfg.ServerTimeout, "Time allowed for a companion server to report its port")

	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write Prometheus metrics to this file after the run")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Live dashboard for parallel runs (terminal only)")
	fs.BoolVar(&cfg.Version, "version", cfg.Version, "Print version and exit")

	return fs
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
		switch f.Name {
		case "j", "fast":
			return "[N]"
		case "coverage":
			return "[html|xml]"
		}
		return ""
	}

	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
