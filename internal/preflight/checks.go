// Package preflight provides startup validation checks, the dependency
// probe and the system information report.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Note: syscall.RLIMIT_NPROC is not exported in Go's syscall package,
// so we read process limits from /proc/self/limits instead.

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks for a run with the given number of
// concurrent workers. interpreter is the test interpreter command (may be
// empty when the catalog has only server groups).
func RunAll(ctx context.Context, workers int, interpreter []string, workDir string) *Result {
	result := &Result{Passed: true}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkFileDescriptors(workers))
	add(checkProcessLimit(workers))
	if len(interpreter) > 0 {
		add(checkInterpreter(ctx, interpreter))
	}
	add(checkWorkDir(workDir))

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(workers int) Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	// Each group holds a few pipes plus its server's sockets.
	required := workers*16 + 64
	actual := int(limit.Cur)
	if limit.Cur > 1<<30 {
		actual = 1 << 30
	}

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d workers)", actual, required, workers),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(workers int) Check {
	required := workers*4 + 50

	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses extracts the soft "Max processes" limit from
// /proc/self/limits content. Returns 0 when absent.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1000000
		}
		var n int
		fmt.Sscanf(fields[2], "%d", &n)
		return n
	}
	return 0
}

// checkInterpreter verifies the test interpreter is available and working.
func checkInterpreter(ctx context.Context, command []string) Check {
	version, err := InterpreterVersion(ctx, command)
	if err != nil {
		return Check{
			Name:    "interpreter",
			Passed:  false,
			Message: fmt.Sprintf("%s not usable: %v", command[0], err),
		}
	}

	path, _ := exec.LookPath(command[0])
	return Check{
		Name:    "interpreter",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (%s)", path, version),
	}
}

// InterpreterVersion runs "<command> --version" and returns the first line
// of its output.
func InterpreterVersion(ctx context.Context, command []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	args := append(append([]string(nil), command[1:]...), "--version")
	output, err := exec.CommandContext(ctx, command[0], args...).CombinedOutput()
	if err != nil {
		return "", err
	}

	line, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n")
	if line == "" {
		line = "unknown version"
	}
	return strings.TrimSpace(line), nil
}

// checkWorkDir verifies result and coverage files can be written.
func checkWorkDir(dir string) Check {
	f, err := os.CreateTemp(dir, ".go-suite-runner-*")
	if err != nil {
		return Check{
			Name:    "work_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s not writable: %v", dir, err),
		}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	abs, _ := filepath.Abs(dir)
	return Check{
		Name:    "work_dir",
		Passed:  true,
		Message: abs + " writable",
	}
}

// PrintResults writes the preflight check results.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 4096 (or lower -j)"
	case "process_limit":
		return "ulimit -u 4096 (or lower -j)"
	case "interpreter":
		return "install the test interpreter or point the catalog's interpreter.command at it"
	case "work_dir":
		return "choose a writable directory with -workdir"
	default:
		return "see documentation"
	}
}
