package config

import "fmt"

// ConfigError reports a missing or invalid configuration value. It is fatal:
// the process must not start with a configuration that produced one.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

func newConfigError(key, format string, args ...any) *ConfigError {
	return &ConfigError{Key: key, Reason: fmt.Sprintf(format, args...)}
}
