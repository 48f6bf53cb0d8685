package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/debussylabs/debussy/internal/util"
)

// Load builds the effective configuration for a project rooted at root.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. System config (/etc/debussy/config.yaml) - optional
//  3. User config (~/.debussy/config.yaml) - optional
//  4. Project config (<root>/.debussy/config.yaml) - optional
//  5. Environment variables (DEBUSSY_*)
//
// System and user config parse errors are logged and skipped; project config
// errors are fatal.
func Load(root string) (*Config, error) {
	cfg := Default()

	systemPath := filepath.Join("/etc", "debussy", ConfigFileName)
	if _, err := os.Stat(systemPath); err == nil {
		if err := mergeFromFile(cfg, systemPath); err != nil {
			slog.Warn("failed to load system config", "path", systemPath, "error", err)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, DebussyDir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(cfg, userPath); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	projectPath := filepath.Join(StateDir(root), ConfigFileName)
	if _, err := os.Stat(projectPath); err == nil {
		if err := mergeFromFile(cfg, projectPath); err != nil {
			return nil, err
		}
	}

	ApplyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// mergeFromFile overlays one YAML file onto cfg. Fields absent from the file
// keep their current values.
func mergeFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Save writes cfg as the project config under root, creating the state
// directory if needed. The write is atomic so a crash cannot leave a
// half-written config behind.
func Save(cfg *Config, root string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	path := filepath.Join(StateDir(root), ConfigFileName)
	if err := util.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
