// Package cliconfig loads configuration for the disklru command-line
// shell, layering defaults, a global user config, a project config,
// and explicit CLI overrides, in that order of increasing precedence.
package cliconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds the settings cmd/disklru needs to open a cache.
type Config struct {
	Dir        string `json:"dir"`
	AppVersion int    `json:"app_version,omitempty"` //nolint:tagliatelle
	ValueCount int    `json:"value_count,omitempty"`  //nolint:tagliatelle
	MaxSize    int64  `json:"max_size,omitempty"`     //nolint:tagliatelle
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".disklru.json"

// DefaultConfig returns the baseline configuration used before any
// config file or flag is applied.
func DefaultConfig() Config {
	return Config{
		Dir:        ".disklru-cache",
		AppVersion: 1,
		ValueCount: 2,
		MaxSize:    10 << 20,
	}
}

// Sources records which config files, if any, were loaded.
type Sources struct {
	Global  string
	Project string
}

// globalConfigPath returns $XDG_CONFIG_HOME/disklru/config.json, or
// ~/.config/disklru/config.json if that variable is unset.
func globalConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "disklru", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "disklru", "config.json")
}

// Load loads configuration with the following precedence (highest
// wins): defaults, global user config, project config file at
// workDir/.disklru.json (or at configPath if non-empty), then the
// already-merged override passed by the caller (CLI flags that were
// explicitly set).
func Load(workDir, configPath string, override Config, setFields map[string]bool) (Config, Sources, error) {
	cfg := DefaultConfig()

	var sources Sources

	if path := globalConfigPath(); path != "" {
		fileCfg, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, Sources{}, err
		}

		if loaded {
			sources.Global = path
			cfg = merge(cfg, fileCfg)
		}
	}

	projectPath := configPath
	mustExist := configPath != ""

	if projectPath == "" {
		projectPath = filepath.Join(workDir, ConfigFileName)
	} else if !filepath.IsAbs(projectPath) {
		projectPath = filepath.Join(workDir, projectPath)
	}

	fileCfg, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, Sources{}, err
	}

	if loaded {
		sources.Project = projectPath
		cfg = merge(cfg, fileCfg)
	}

	if setFields["dir"] {
		cfg.Dir = override.Dir
	}

	if setFields["app_version"] {
		cfg.AppVersion = override.AppVersion
	}

	if setFields["value_count"] {
		cfg.ValueCount = override.ValueCount
	}

	if setFields["max_size"] {
		cfg.MaxSize = override.MaxSize
	}

	if cfg.Dir == "" {
		return Config{}, Sources{}, fmt.Errorf("dir must not be empty")
	}

	return cfg, sources, nil
}

func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-controlled path
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("parsing JSONC config %s: %w", path, err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, true, nil
}

func merge(base, overlay Config) Config {
	if overlay.Dir != "" {
		base.Dir = overlay.Dir
	}

	if overlay.AppVersion != 0 {
		base.AppVersion = overlay.AppVersion
	}

	if overlay.ValueCount != 0 {
		base.ValueCount = overlay.ValueCount
	}

	if overlay.MaxSize != 0 {
		base.MaxSize = overlay.MaxSize
	}

	return base
}

// Format renders cfg as indented JSON, for the shell's "config" command.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("formatting config: %w", err)
	}

	return strings.TrimSpace(string(data)) + "\n", nil
}
