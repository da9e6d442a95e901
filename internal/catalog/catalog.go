// Package catalog describes the test groups go-suite-runner knows about:
// how to invoke the test interpreter, which external dependencies each
// group needs, and how coverage data is merged into reports.
//
// A Catalog is configured (availability, disabled groups) by the caller
// before scheduling starts and is read-only afterwards.
package catalog

import (
	"sort"
)

// Section kinds.
const (
	KindStandard = "standard"
	KindServer   = "server"
)

// DefaultPortPattern matches a server's port announcement line.
const DefaultPortPattern = `(?i)port[=: ]+(\d+)`

// Catalog is the parsed catalog file.
type Catalog struct {
	Program         string       `yaml:"program"`
	RerunCommand    string       `yaml:"rerun_command"`
	Interpreter     Interpreter  `yaml:"interpreter"`
	Env             EnvNames     `yaml:"env"`
	DefaultIncludes []string     `yaml:"default_includes"`
	Dependencies    []Dependency `yaml:"dependencies"`
	Sections        []*Section   `yaml:"sections"`
	Coverage        Coverage     `yaml:"coverage"`

	// Source is where the catalog was loaded from ("built-in" for the
	// embedded default).
	Source string `yaml:"-"`

	have map[string]bool
}

// Interpreter describes how standard groups run in-process tests.
type Interpreter struct {
	Command           []string `yaml:"command"`
	Bootstrap         string   `yaml:"bootstrap"`
	CoverageBootstrap string   `yaml:"coverage_bootstrap"`
	XunitArgs         []string `yaml:"xunit_args"` // {file} is the result path
	VersionArgs       []string `yaml:"version_args"`
}

// EnvNames are the environment variables used to isolate each group.
type EnvNames struct {
	ConfigHome    string `yaml:"config_home"`
	WorkingDir    string `yaml:"working_dir"`
	PlotConfig    string `yaml:"plot_config"`
	CoverageStart string `yaml:"coverage_start"`
}

// Dependency is an optional tool or library. It is available when Binary is
// on PATH, or when Probe exits zero.
type Dependency struct {
	Name   string   `yaml:"name"`
	Binary string   `yaml:"binary"`
	Probe  []string `yaml:"probe"`
}

// Section is one test group.
type Section struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Includes []string `yaml:"includes"`
	Requires []string `yaml:"requires"`
	Slow     bool     `yaml:"slow"`

	// Server-backed groups only.
	Server         []string `yaml:"server"`
	Runner         []string `yaml:"runner"`
	TestDir        string   `yaml:"test_dir"`
	TestDirCommand []string `yaml:"test_dir_command"`
	PortPattern    string   `yaml:"port_pattern"`

	disabled bool
}

// Coverage holds the external commands used to merge and report coverage.
type Coverage struct {
	DataFile string   `yaml:"data_file"`
	HTMLDir  string   `yaml:"html_dir"`
	XMLFile  string   `yaml:"xml_file"`
	Combine  []string `yaml:"combine"`
	HTML     []string `yaml:"html"`
	XML      []string `yaml:"xml"`
}

// IsServer reports whether the group needs a companion server.
func (s *Section) IsServer() bool {
	return s.Kind == KindServer
}

// Enabled reports whether the group has not been disabled.
func (s *Section) Enabled() bool {
	return !s.disabled
}

// Pattern returns the port announcement pattern for a server group.
func (s *Section) Pattern() string {
	if s.PortPattern == "" {
		return DefaultPortPattern
	}
	return s.PortPattern
}

// Lookup returns the named section.
func (c *Catalog) Lookup(name string) (*Section, bool) {
	for _, s := range c.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Names returns the names of all sections of the given kind, in catalog order.
func (c *Catalog) Names(kind string) []string {
	var names []string
	for _, s := range c.Sections {
		if s.Kind == kind {
			names = append(names, s.Name)
		}
	}
	return names
}

// Includes returns the coverage source list for a section, falling back to
// the catalog's default includes for unknown sections.
func (c *Catalog) Includes(name string) []string {
	if s, ok := c.Lookup(name); ok && len(s.Includes) > 0 {
		return s.Includes
	}
	return c.DefaultIncludes
}

// Disable marks a section as not to be run. Unknown names are ignored.
func (c *Catalog) Disable(name string) {
	if s, ok := c.Lookup(name); ok {
		s.disabled = true
	}
}

// SetAvailability records which dependencies are present.
func (c *Catalog) SetAvailability(have map[string]bool) {
	c.have = make(map[string]bool, len(have))
	for k, v := range have {
		c.have[k] = v
	}
}

// Have reports whether a dependency is available. Dependencies never probed
// are treated as missing.
func (c *Catalog) Have(dep string) bool {
	return c.have[dep]
}

// Availability returns the recorded dependency map, keys sorted into
// available and missing lists.
func (c *Catalog) Availability() (avail, missing []string) {
	for k, ok := range c.have {
		if ok {
			avail = append(avail, k)
		} else {
			missing = append(missing, k)
		}
	}
	sort.Strings(avail)
	sort.Strings(missing)
	return avail, missing
}

// HaveAll reports whether every named dependency is available.
func (c *Catalog) HaveAll(deps []string) bool {
	for _, d := range deps {
		if !c.Have(d) {
			return false
		}
	}
	return true
}

// WillRun reports whether a group should run: it is enabled and all of its
// requirements are available. Unknown groups always run.
func (c *Catalog) WillRun(name string) bool {
	s, ok := c.Lookup(name)
	if !ok {
		return true
	}
	return s.Enabled() && c.HaveAll(s.Requires)
}

// ProgramName returns the display name used in banners.
func (c *Catalog) ProgramName() string {
	if c.Program == "" {
		return "Test"
	}
	return c.Program
}
