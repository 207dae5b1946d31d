// config_validation.go - Fail-fast validation of FD_* environment config.
//
// Run once at startup so misconfiguration surfaces as a clear message
// instead of a runtime failure mid-request.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigValidationError represents a single configuration problem.
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// ConfigValidator accumulates validation errors across all checks.
type ConfigValidator struct {
	errors []ConfigValidationError
}

func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

func (v *ConfigValidator) addError(field, message string) {
	v.errors = append(v.errors, ConfigValidationError{Field: field, Message: message})
}

func (v *ConfigValidator) HasErrors() bool { return len(v.errors) > 0 }

// ErrorString returns a formatted report of every error found.
func (v *ConfigValidator) ErrorString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Configuration validation failed with %d error(s):\n", len(v.errors))
	for i, err := range v.errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Required checks that an environment variable is set and returns it.
func (v *ConfigValidator) Required(key string) string {
	value := os.Getenv(key)
	if value == "" {
		v.addError(key, "required environment variable not set")
	}
	return value
}

// IntInRange validates an optional integer variable against [min, max].
func (v *ConfigValidator) IntInRange(key string, min, max int) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		v.addError(key, fmt.Sprintf("not an integer: %q", raw))
		return
	}
	if n < min || n > max {
		v.addError(key, fmt.Sprintf("%d outside allowed range %d..%d", n, min, max))
	}
}

// Duration validates an optional duration variable.
func (v *ConfigValidator) Duration(key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if _, err := time.ParseDuration(raw); err != nil {
		v.addError(key, fmt.Sprintf("not a duration: %q", raw))
	}
}

// OneOf validates an optional variable against an allowed set.
func (v *ConfigValidator) OneOf(key string, allowed ...string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	for _, a := range allowed {
		if raw == a {
			return
		}
	}
	v.addError(key, fmt.Sprintf("%q not one of %s", raw, strings.Join(allowed, ", ")))
}

// ValidateEnv runs every startup check the binary depends on.
func ValidateEnv() *ConfigValidator {
	v := NewConfigValidator()

	v.Required("DATABASE_URL")
	v.Required("FD_ADMIN_USER")

	// One of the two password forms must be present.
	if os.Getenv("FD_ADMIN_PASS") == "" && os.Getenv("FD_ADMIN_PASS_HASH") == "" {
		v.addError("FD_ADMIN_PASS", "set FD_ADMIN_PASS or FD_ADMIN_PASS_HASH")
	}

	v.OneOf("FD_BLOB_BACKEND", "disk", "s3")
	if os.Getenv("FD_BLOB_BACKEND") == "s3" {
		v.Required("FD_S3_ENDPOINT")
		v.Required("FD_S3_ACCESS_KEY")
		v.Required("FD_S3_SECRET_KEY")
		v.Required("FD_S3_BUCKET")
	}

	v.IntInRange("FD_RATE_LIMIT", 0, 100000)
	v.IntInRange("FD_JANITOR_BATCH", 1, 10000)
	v.Duration("FD_JANITOR_INTERVAL")
	v.OneOf("FD_LOG_FORMAT", "json", "text")
	v.OneOf("FD_LOG_LEVEL", "debug", "info", "warn", "error")

	return v
}
