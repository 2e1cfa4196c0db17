// Package config loads, merges, validates and persists the proxy's layered
// configuration: built-in defaults, a global per-user file, a project file,
// and a single JSON environment override, in that order of precedence.
package config

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ephram/relay/pkg/api"
)

// Recognized backend types. Adding a backend family means registering a
// constructor in internal/llm and adding the constant here.
const (
	TypeManagedCloud = "managed-cloud"
	TypeSelfHosted   = "self-hosted"
)

// AutoPort selects a free listen port from the scan range at startup.
const (
	AutoPort       = "auto"
	PortRangeStart = 8100
	PortRangeEnd   = 8199
)

type Config struct {
	// Backend names the entry in Backends that serves requests.
	Backend string `json:"backend" mapstructure:"backend"`

	// Host is the bind address. Empty means all interfaces.
	Host string `json:"host,omitempty" mapstructure:"host"`

	// Port is either AutoPort or a decimal port number.
	Port string `json:"port,omitempty" mapstructure:"port"`

	Backends map[string]BackendConfig `json:"backends" mapstructure:"backends"`

	Usage   UsageConfig   `json:"usage" mapstructure:"usage"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// BackendConfig is a tagged variant keyed by Type. Only the fields of the
// matching variant are meaningful; the loader validates the active entry.
type BackendConfig struct {
	Type string `json:"type" mapstructure:"type"`

	// managed-cloud fields
	APIKey string `json:"api_key,omitempty" mapstructure:"api_key"`
	APIURL string `json:"api_url,omitempty" mapstructure:"api_url"`
	Model  string `json:"model,omitempty" mapstructure:"model"`

	// self-hosted fields
	URL         string `json:"url,omitempty" mapstructure:"url"`
	Description string `json:"description,omitempty" mapstructure:"description"`
}

// UsageConfig enables the optional SQLite request log.
type UsageConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path,omitempty" mapstructure:"path"`
}

type TracingConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// Defaults is the built-in zero-config setup: a self-hosted backend on the
// conventional local tunnel port, auto port selection, accounting off.
func Defaults() *Config {
	return &Config{
		Backend: "local",
		Port:    AutoPort,
		Backends: map[string]BackendConfig{
			"local": {
				Type:        TypeSelfHosted,
				URL:         "http://localhost:8000",
				Description: "Self-hosted inference endpoint (SSH tunnel)",
			},
		},
	}
}

// Validate checks that the configuration is usable: the active backend must
// exist, carry a recognized type, and satisfy its type-specific requirements.
func Validate(cfg *Config) error {
	if cfg.Backend == "" {
		return api.ConfigError("no active backend configured")
	}

	b, ok := cfg.Backends[cfg.Backend]
	if !ok {
		return api.ConfigError(fmt.Sprintf("active backend %q is not defined in backends", cfg.Backend))
	}

	switch b.Type {
	case TypeManagedCloud:
		if b.APIKey == "" {
			return api.ConfigError(fmt.Sprintf("backend %q: managed-cloud requires a non-empty api_key", cfg.Backend))
		}
	case TypeSelfHosted:
		if err := validateURL(b.URL); err != nil {
			return api.ConfigError(fmt.Sprintf("backend %q: %v", cfg.Backend, err))
		}
	case "":
		return api.ConfigError(fmt.Sprintf("backend %q is missing required field \"type\"", cfg.Backend))
	default:
		return api.ConfigError(fmt.Sprintf("backend %q has unsupported type %q (supported: %s, %s)",
			cfg.Backend, b.Type, TypeManagedCloud, TypeSelfHosted))
	}

	if cfg.Port != "" && cfg.Port != AutoPort {
		p, err := strconv.Atoi(cfg.Port)
		if err != nil || p < 1 || p > 65535 {
			return api.ConfigError(fmt.Sprintf("port must be %q or an integer between 1 and 65535, got %q", AutoPort, cfg.Port))
		}
	}

	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("self-hosted requires a url")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("self-hosted url %q is not a valid URL", raw)
	}
	return nil
}

// HasSecrets reports whether any backend entry carries a credential.
// Save uses it to decide file permissions.
func (c *Config) HasSecrets() bool {
	for _, b := range c.Backends {
		if b.APIKey != "" {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Loaded configurations are treated as immutable;
// every change produces a new object.
func (c *Config) Clone() *Config {
	out := *c
	out.Backends = make(map[string]BackendConfig, len(c.Backends))
	for k, v := range c.Backends {
		out.Backends[k] = v
	}
	return &out
}
