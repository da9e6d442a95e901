// Package config provides configuration management for go-suite-runner.
package config

import "time"

// Coverage modes accepted by -coverage.
const (
	CoverageOff  = ""
	CoverageData = "data" // bare -coverage: keep the raw combined data only
	CoverageHTML = "html"
	CoverageXML  = "xml"
)

// Config holds all configuration options for a suite run.
type Config struct {
	// Group selection
	Groups    []string `json:"groups"` // empty = all
	All       bool     `json:"all"`    // include slow/disabled groups
	ExtraArgs []string `json:"extra_args"`

	// Scheduling
	Fast         int  `json:"fast"` // 1 = sequential, 0 = one worker per CPU, N = pool of N
	BufferOutput bool `json:"buffer_output"`

	// Reports
	Xunit    bool   `json:"xunit"`
	Coverage string `json:"coverage"`

	// Catalog / filesystem
	CatalogPath string `json:"catalog_path"` // "" = embedded default
	WorkDir     string `json:"work_dir"`

	// Process cleanup
	KillAttempts  int           `json:"kill_attempts"`
	KillInterval  time.Duration `json:"kill_interval"`
	ServerTimeout time.Duration `json:"server_timeout"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // "" = disabled
	MetricsFile string `json:"metrics_file"` // "" = disabled
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	TUIEnabled  bool   `json:"tui_enabled"`

	Version bool `json:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Fast:          1,
		WorkDir:       ".",
		KillAttempts:  10,
		KillInterval:  100 * time.Millisecond,
		ServerTimeout: 60 * time.Second,
		LogFormat:     "text",
	}
}

// Sequential reports whether groups run one at a time.
func (c *Config) Sequential() bool {
	return c.Fast == 1
}

// ForceBuffer reports whether child output must be captured regardless of
// -buffer. Concurrent runs capture to keep output from interleaving, and the
// dashboard owns the terminal.
func (c *Config) ForceBuffer() bool {
	return !c.Sequential() || c.TUIEnabled
}
