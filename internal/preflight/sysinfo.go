package preflight

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// SysInfo is the environment description printed before the run status.
type SysInfo struct {
	RunnerVersion  string
	Catalog        string
	Interpreter    string // resolved path, or the configured command
	InterpreterVer string
	Platform       string
	CPUs           int
	Available      []string
	Missing        []string
}

// CollectSysInfo fills the platform fields. Interpreter fields and
// dependency lists are supplied by the caller.
func CollectSysInfo(version string) SysInfo {
	return SysInfo{
		RunnerVersion: version,
		Platform:      runtime.GOOS + "/" + runtime.GOARCH + " (" + runtime.Version() + ")",
		CPUs:          runtime.NumCPU(),
	}
}

// Report formats the system information as aligned "name: value" lines,
// followed by the available and missing dependency lists.
func (s SysInfo) Report() string {
	type pair struct{ name, value string }
	pairs := []pair{
		{"go-suite-runner version", s.RunnerVersion},
		{"Catalog", compressUser(s.Catalog)},
		{"Interpreter", compressUser(s.Interpreter)},
		{"Interpreter version", s.InterpreterVer},
		{"Platform", s.Platform},
		{"CPUs", fmt.Sprint(s.CPUs)},
	}

	width := 0
	for _, p := range pairs {
		width = max(width, len(p.name))
	}

	var b strings.Builder
	for _, p := range pairs {
		fmt.Fprintf(&b, "%-*s: %s\n", width, p.name, p.value)
	}

	if len(s.Available) > 0 {
		b.WriteString("\nTools and libraries available at test time:\n")
		b.WriteString("   " + strings.Join(s.Available, " ") + "\n")
	}
	if len(s.Missing) > 0 {
		b.WriteString("\nTools and libraries NOT available at test time:\n")
		b.WriteString("   " + strings.Join(s.Missing, " ") + "\n")
	}

	return b.String()
}

// compressUser replaces the home directory prefix with "~".
func compressUser(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" || home == "/" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+string(os.PathSeparator)) {
		return "~" + path[len(home):]
	}
	return path
}
