// Package config validates the flags cmd/supercouch parses before the
// engine starts.
package config

import (
	"fmt"
	"strings"
)

// Config holds the fully-parsed command-line configuration for the
// supercouch binary.
type Config struct {
	RedisURL  string
	EmitSSet  bool
	LogFile   string
	SyslogURL string
	Verbose   bool
	Debug     bool
}

// Validate checks Config for the conditions that must hold before the
// query-server engine is allowed to start, returning every violation
// joined into one error so a misconfigured operator sees the whole
// picture at once instead of fixing flags one at a time.
func (c Config) Validate() error {
	v := NewValidator()

	v.RequireString("--redis-url", c.RedisURL)
	if c.RedisURL != "" {
		v.RequireOneOfPrefix("--redis-url", c.RedisURL, []string{"redis://", "rediss://", "redis-cluster://"})
	}
	return v.Validate()
}

// Validator accumulates configuration problems.
type Validator struct {
	errors []string
}

// NewValidator creates an empty Validator.
func NewValidator() *Validator {
	return &Validator{errors: make([]string, 0)}
}

// RequireString records an error if value is empty.
func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

// RequireOneOfPrefix records an error if value has none of the given
// prefixes.
func (v *Validator) RequireOneOfPrefix(field, value string, prefixes []string) {
	for _, p := range prefixes {
		if strings.HasPrefix(value, p) {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must start with one of: %s", field, strings.Join(prefixes, ", ")))
}

// IsValid reports whether no errors have been recorded.
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns every recorded validation error.
func (v *Validator) Errors() []string {
	return v.errors
}

// ErrorString joins every recorded error into one string.
func (v *Validator) ErrorString() string {
	return strings.Join(v.errors, "; ")
}

// Validate returns an error summarizing every violation, or nil.
func (v *Validator) Validate() error {
	if v.IsValid() {
		return nil
	}
	return fmt.Errorf("configuration validation failed: %s", v.ErrorString())
}
