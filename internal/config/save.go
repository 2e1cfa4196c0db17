package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Save persists cfg to path as indented JSON. When any backend entry carries
// a credential the file is written owner-read/write only; reconfiguration
// tooling depends on this, it is a security contract rather than a nicety.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	mode := os.FileMode(0o644)
	if cfg.HasSecrets() {
		mode = 0o600
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	// WriteFile keeps the mode of a pre-existing file; enforce ours.
	return os.Chmod(path, mode)
}
