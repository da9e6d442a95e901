// Package coverage renders per-group coverage run configurations and merges
// the collected data into reports.
package coverage

import (
	"fmt"
	"os"
	"strings"
)

// RunConfigName is the file name of a group's coverage run configuration.
const RunConfigName = ".coveragerc"

// DataSuffix is appended to the group name to form its data file name.
const DataSuffix = ".coverage-data"

// RunConfig is the coverage configuration for one group.
type RunConfig struct {
	Path     string   // where the file was written
	DataFile string   // absolute path of the group's data file
	Sources  []string // packages measured
}

// Render returns the configuration file content.
func (c RunConfig) Render() string {
	var b strings.Builder
	b.WriteString("[run]\n")
	fmt.Fprintf(&b, "data_file = %s\n", c.DataFile)
	b.WriteString("source =\n")
	for _, s := range c.Sources {
		fmt.Fprintf(&b, "  %s\n", s)
	}
	return b.String()
}

// Write writes the rendered configuration to c.Path.
func (c RunConfig) Write() error {
	if err := os.WriteFile(c.Path, []byte(c.Render()), 0o644); err != nil {
		return fmt.Errorf("write coverage config: %w", err)
	}
	return nil
}
