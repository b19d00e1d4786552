package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override the default locations.
const (
	ConfigPathEnv = "RECIPEBOX_CONFIG_PATH"
	HomeEnv       = "RECIPEBOX_HOME"
)

// GetDefaults returns the config path, base dir and log dir. Lookup order:
//   - config: $RECIPEBOX_CONFIG_PATH, $XDG_CONFIG_HOME/recipebox/config.toml, ~/.config/recipebox/config.toml
//   - data:   $RECIPEBOX_HOME, $XDG_DATA_HOME/recipebox, ~/.local/share/recipebox
//
// The log dir always lives under the base dir.
func GetDefaults() (map[string]string, error) {
	configPath, err := lookupDir(ConfigPathEnv, "XDG_CONFIG_HOME", ".config", "recipebox", "config.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := lookupDir(HomeEnv, "XDG_DATA_HOME", filepath.Join(".local", "share"), "recipebox")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// lookupDir resolves a location from an explicit override, then an XDG base
// directory, then a path under the home directory. Relative XDG values are
// ignored.
func lookupDir(override, xdgVar, homeRel string, elem ...string) (string, error) {
	if path := os.Getenv(override); path != "" {
		return path, nil
	}

	if xdg := os.Getenv(xdgVar); filepath.IsAbs(xdg) {
		return filepath.Join(append([]string{xdg}, elem...)...), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir, homeRel}, elem...)...), nil
}
