package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// BuiltinSource is the Source of the embedded catalog.
const BuiltinSource = "built-in"

// Default returns a fresh copy of the embedded catalog.
func Default() (*Catalog, error) {
	c, err := Parse(defaultCatalog)
	if err != nil {
		return nil, fmt.Errorf("built-in catalog: %w", err)
	}
	c.Source = BuiltinSource
	return c, nil
}

// Load reads a catalog from path, or the embedded default when path is "".
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	c.Source = path
	return c, nil
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	for _, s := range c.Sections {
		if s != nil && s.Kind == "" {
			s.Kind = KindStandard
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FieldError is a catalog validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Catalog) validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	hasStandard := false
	seen := make(map[string]bool)
	for i, s := range c.Sections {
		field := fmt.Sprintf("sections[%d]", i)
		if s == nil {
			add(field, "empty section")
			continue
		}
		if s.Name == "" {
			add(field+".name", "must not be empty")
		} else if seen[s.Name] {
			add(field+".name", "duplicate section %q", s.Name)
		}
		seen[s.Name] = true

		switch s.Kind {
		case KindStandard:
			hasStandard = true
		case KindServer:
			if len(s.Server) == 0 {
				add(field+".server", "server group %q needs a server command", s.Name)
			}
			if len(s.Runner) == 0 {
				add(field+".runner", "server group %q needs a runner command", s.Name)
			}
			re, err := regexp.Compile(s.Pattern())
			if err != nil {
				add(field+".port_pattern", "%v", err)
			} else if re.NumSubexp() < 1 {
				add(field+".port_pattern", "must have a capture group for the port")
			}
		default:
			add(field+".kind", "must be %q or %q (got %q)", KindStandard, KindServer, s.Kind)
		}
	}

	if hasStandard && len(c.Interpreter.Command) == 0 {
		add("interpreter.command", "must not be empty")
	}

	for i, d := range c.Dependencies {
		field := fmt.Sprintf("dependencies[%d]", i)
		if d.Name == "" {
			add(field+".name", "must not be empty")
		}
		if d.Binary == "" && len(d.Probe) == 0 {
			add(field, "dependency %q needs a binary or a probe", d.Name)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
