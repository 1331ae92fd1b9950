package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is wrapped by errors returned from ValidateConfig.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
	Warning bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// Warnings returns only warning-level issues.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if err.Warning {
			out = append(out, err)
		}
	}
	return out
}

// Errors returns only error-level issues.
func (e ValidationErrors) Errors() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if !err.Warning {
			out = append(out, err)
		}
	}
	return out
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// ValidateConfig returns the error-level issues found by Check, or nil.
func ValidateConfig(c *Config) error {
	if errs := Check(c).Errors(); len(errs) > 0 {
		return errs
	}
	return nil
}

// Check performs comprehensive validation of the configuration and
// returns every issue, warnings included.
func Check(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateSupervisor(&c.Supervisor)...)
	errs = append(errs, validateStats(&c.Stats)...)
	errs = append(errs, validateNotify(&c.Notify)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Type {
	case "file", "sqlite":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("invalid storage type: %q (valid: file, sqlite)", s.Type),
		})
	}

	switch {
	case s.DebounceMs < 0 || s.DebounceMs > 60000:
		errs = append(errs, *RangeError("storage.debounce_ms", 0, 60000))
	case s.DebounceMs == 0:
		errs = append(errs, ValidationError{
			Field:   "storage.debounce_ms",
			Message: "0 falls back to the default quiet period",
			Warning: true,
		})
	}

	return errs
}

func validateSupervisor(s *SupervisorConfig) ValidationErrors {
	var errs ValidationErrors

	if s.RetrySec < 1 || s.RetrySec > 3600 {
		errs = append(errs, *RangeError("supervisor.retry_sec", 1, 3600))
	}
	if s.HealthSec < 1 || s.HealthSec > 3600 {
		errs = append(errs, *RangeError("supervisor.health_sec", 1, 3600))
	}
	if s.RestartDelayMs < 0 || s.RestartDelayMs > 60000 {
		errs = append(errs, *RangeError("supervisor.restart_delay_ms", 0, 60000))
	}
	if s.TickMs < 10 || s.TickMs > 60000 {
		errs = append(errs, *RangeError("supervisor.tick_ms", 10, 60000))
	}
	if s.TickMs > 0 && s.HealthSec > 0 && s.TickMs > s.HealthSec*1000 {
		errs = append(errs, ValidationError{
			Field:   "supervisor.tick_ms",
			Message: "tick is longer than the health period; checks will run late",
			Warning: true,
		})
	}

	return errs
}

func validateStats(s *StatsConfig) ValidationErrors {
	var errs ValidationErrors

	if s.MilestoneInterval < 1 {
		errs = append(errs, ValidationError{
			Field:   "stats.milestone_interval",
			Message: "milestone interval must be positive",
		})
	}
	if s.IntervalCapMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "stats.interval_cap_ms",
			Message: "interval cap must be positive",
		})
	}

	return errs
}

func validateNotify(n *NotifyConfig) ValidationErrors {
	var errs ValidationErrors

	switch n.Backend {
	case "log", "dbus", "none":
	default:
		errs = append(errs, ValidationError{
			Field:   "notify.backend",
			Message: fmt.Sprintf("invalid backend: %q (valid: log, dbus, none)", n.Backend),
		})
	}
	if n.OverlaySize < 0 {
		errs = append(errs, ValidationError{
			Field:   "notify.overlay_size",
			Message: "overlay size cannot be negative",
		})
	}
	if n.Milestones && n.Backend == "none" {
		errs = append(errs, ValidationError{
			Field:   "notify.milestones",
			Message: "milestones are enabled but the backend is none",
			Warning: true,
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, *RequiredFieldError("logging.file_path"))
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
