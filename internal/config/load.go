package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// EnvOverride holds a JSON-encoded partial configuration applied last,
	// with the highest precedence of all sources.
	EnvOverride = "RELAY_CONFIG"

	// ConfigFileName is used for both the global per-user file (in the home
	// directory) and the project file (in the workspace root).
	ConfigFileName = ".llmrc.json"
)

// partial is one configuration layer. Scalars are pointers so a layer that
// omits a field does not clobber a lower-precedence value.
type partial struct {
	Backend  *string                  `mapstructure:"backend"`
	Host     *string                  `mapstructure:"host"`
	Port     *string                  `mapstructure:"port"`
	Backends map[string]BackendConfig `mapstructure:"backends"`
	Usage    *UsageConfig             `mapstructure:"usage"`
	Tracing  *TracingConfig           `mapstructure:"tracing"`
}

// Load produces one validated Configuration from the layered sources, in
// increasing precedence: built-in defaults, the global file, the project
// file under workspaceDir, and the EnvOverride variable.
//
// Merge policy, preserved deliberately from the original tool: if no explicit
// source exists at all, the built-in defaults are used wholesale (first-run
// usability). If any explicit source exists, scalars are overridden whole by
// the highest-precedence source that sets them, and the backends map is
// merged key-by-key — a higher layer replaces a named backend's entire entry,
// it never field-merges two layers' entries for the same name.
func Load(workspaceDir string) (*Config, error) {
	return LoadWithGlobal(GlobalPath(), workspaceDir)
}

// LoadWithGlobal is Load with an explicit global file path, for tooling and
// tests that cannot touch the real home directory.
func LoadWithGlobal(globalPath, workspaceDir string) (*Config, error) {
	// Pick up a .env file before reading the override variable.
	_ = godotenv.Load()

	var layers []*partial

	for _, path := range []string{globalPath, filepath.Join(workspaceDir, ConfigFileName)} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		p, err := readFileLayer(path)
		if err != nil {
			return nil, err
		}
		layers = append(layers, p)
	}

	if raw := os.Getenv(EnvOverride); raw != "" {
		p, err := readJSONLayer(raw, EnvOverride)
		if err != nil {
			return nil, err
		}
		layers = append(layers, p)
	}

	cfg := Defaults()
	if len(layers) > 0 {
		cfg = merge(cfg, layers)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GlobalPath returns the fixed per-user configuration file location.
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ConfigFileName)
}

func readFileLayer(path string) (*partial, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return readJSONLayer(string(raw), path)
}

func readJSONLayer(raw, source string) (*partial, error) {
	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(strings.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", source, err)
	}

	var p partial
	// Weakly typed so "port": 8080 and "port": "auto" both land in a string.
	err := v.Unmarshal(&p, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	})
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", source, err)
	}

	// Viper lowercases all nested map keys, which would silently rename a
	// backend called "B" to "b". Re-decode the backends subtree from the raw
	// JSON so names keep their case.
	var keyed struct {
		Backends map[string]BackendConfig `json:"backends"`
	}
	if err := json.Unmarshal([]byte(raw), &keyed); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", source, err)
	}
	if keyed.Backends != nil {
		p.Backends = keyed.Backends
	}

	return &p, nil
}

// merge applies layers over base in order. Whole-value scalar override;
// key-wise replace for the backends map.
func merge(base *Config, layers []*partial) *Config {
	out := base.Clone()
	for _, l := range layers {
		if l.Backend != nil {
			out.Backend = *l.Backend
		}
		if l.Host != nil {
			out.Host = *l.Host
		}
		if l.Port != nil {
			out.Port = *l.Port
		}
		if l.Usage != nil {
			out.Usage = *l.Usage
		}
		if l.Tracing != nil {
			out.Tracing = *l.Tracing
		}
		for name, b := range l.Backends {
			out.Backends[name] = b
		}
	}
	return out
}
