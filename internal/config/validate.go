package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Fast < 0 {
		errs = append(errs, ValidationError{
			Field:   "fast",
			Message: fmt.Sprintf("must be 0 (one per CPU) or a positive worker count (got %d)", cfg.Fast),
		})
	}

	validCoverage := map[string]bool{
		CoverageOff: true, CoverageData: true, CoverageHTML: true, CoverageXML: true,
	}
	if !validCoverage[cfg.Coverage] {
		errs = append(errs, ValidationError{
			Field:   "coverage",
			Message: fmt.Sprintf("must be bare, 'html' or 'xml' (got %q)", cfg.Coverage),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.LogFormat)] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if cfg.KillAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "kill_attempts",
			Message: "must be at least 1",
		})
	}

	if cfg.KillInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "kill_interval",
			Message: "must be positive",
		})
	}

	if cfg.ServerTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server_timeout",
			Message: "must be positive",
		})
	}

	if cfg.WorkDir == "" {
		errs = append(errs, ValidationError{
			Field:   "work_dir",
			Message: "must not be empty",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
