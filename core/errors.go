package core

import (
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeConfigFileUnreadable = "CONFIG_FILE_UNREADABLE"
	ErrCodeConfigFileInvalid    = "CONFIG_FILE_INVALID"
	ErrCodeInvalidValue         = "INVALID_VALUE"
	ErrCodeInvalidURL           = "INVALID_URL"
)

// ErrConfigFileUnreadable returns an error for a GENJOB_CONFIG file that cannot be read.
func ErrConfigFileUnreadable(path string, err error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeConfigFileUnreadable,
		Message: fmt.Sprintf("Cannot read configuration file %s: %v", path, err),
		Action:  "Check GENJOB_CONFIG points at a readable YAML file, or unset it",
	}
}

// ErrConfigFileInvalid returns an error for a configuration file that is not valid YAML.
func ErrConfigFileInvalid(path string, err error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeConfigFileInvalid,
		Message: fmt.Sprintf("Configuration file %s is not valid YAML: %v", path, err),
		Action:  "Fix the YAML syntax; keys use the snake_case field names",
	}
}

// ErrInvalidValue returns an error for an out-of-range configuration value.
func ErrInvalidValue(key string, value interface{}, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s value %v: %s", key, value, reason),
		Action:  fmt.Sprintf("Set %s in your .env file or configuration file", key),
	}
}

// ErrInvalidURL returns an error for a malformed endpoint URL.
func ErrInvalidURL(key, url, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidURL,
		Message: fmt.Sprintf("Invalid %s URL '%s': %s", key, url, reason),
		Action:  fmt.Sprintf("Set %s to a valid URL (e.g., http://localhost:11434/v1)", key),
	}
}
