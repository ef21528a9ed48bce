// ABOUTME: XDG-based data and config directory resolution for the prospect CLI.
// ABOUTME: Checks XDG_DATA_HOME / XDG_CONFIG_HOME, falls back to ~/.local/share and ~/.config.
package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultDataDir returns the default data directory for persistent state.
// It checks XDG_DATA_HOME first, then falls back to ~/.local/share/prospect.
func defaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "prospect"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "prospect"), nil
}

// defaultConfigDir returns the default config directory.
// It checks XDG_CONFIG_HOME first, then falls back to ~/.config/prospect.
func defaultConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "prospect"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".config", "prospect"), nil
}

// resolveDataDir returns the data directory to use. Precedence is the
// -data-dir flag, then the configured value (PROSPECT_DATA_DIR or the
// config file's data_dir), then the XDG-based default.
func resolveDataDir(flagValue, configured string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if configured != "" {
		return configured, nil
	}
	return defaultDataDir()
}
