// ABOUTME: Layered CLI configuration: YAML config file, environment variables, flags.
// ABOUTME: Precedence is flags over environment over config.yaml over defaults.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// fileConfig is the subset of configuration readable from config.yaml in the
// XDG config directory.
type fileConfig struct {
	DataDir       string `yaml:"data_dir"`
	Model         string `yaml:"model"`
	ContextBudget int    `yaml:"context_budget"`
	Addr          string `yaml:"addr"`
	OpenAIKey     string `yaml:"openai_api_key"`
	SerpAPIKey    string `yaml:"serpapi_api_key"`
	ApolloKey     string `yaml:"apollo_api_key"`
}

// loadFileConfig reads config.yaml from the XDG config directory. A missing
// file is not an error; a malformed one is.
func loadFileConfig() (fileConfig, error) {
	var fc fileConfig

	dir, err := defaultConfigDir()
	if err != nil {
		return fc, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config: %w", err)
	}
	return fc, nil
}

// applyEnv overlays PROSPECT_* and provider key environment variables onto
// the file config.
func applyEnv(fc fileConfig) fileConfig {
	if v := os.Getenv("PROSPECT_DATA_DIR"); v != "" {
		fc.DataDir = v
	}
	if v := os.Getenv("PROSPECT_MODEL"); v != "" {
		fc.Model = v
	}
	if v := os.Getenv("PROSPECT_ADDR"); v != "" {
		fc.Addr = v
	}
	if v := os.Getenv("PROSPECT_CONTEXT_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			fc.ContextBudget = n
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		fc.OpenAIKey = v
	}
	if v := os.Getenv("SERPAPI_API_KEY"); v != "" {
		fc.SerpAPIKey = v
	}
	if v := os.Getenv("APOLLO_API_KEY"); v != "" {
		fc.ApolloKey = v
	}
	return fc
}
