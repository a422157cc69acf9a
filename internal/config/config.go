// Package config loads the node's configuration: an embedded default
// YAML document, merged with an optional user-supplied YAML file,
// merged with ANNALINK_* environment overrides applied last.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Config is the node's resolved configuration.
type Config struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	HTTPPort           int    `yaml:"http_port"`
	DataFile           string `yaml:"data_file"`
	Difficulty         int    `yaml:"difficulty"`
	TargetBlockTime    int    `yaml:"target_block_time"`
	AdjustmentInterval int    `yaml:"adjustment_interval"`
	MaxPeers           int    `yaml:"max_peers"`
}

// Load resolves configuration from the embedded default, an optional
// userPath YAML file (skipped if empty; an error if the named file does
// not exist), and environment overrides ANNALINK_HOST / ANNALINK_PORT /
// ANNALINK_DIFFICULTY.
func Load(userPath string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse embedded default: %w", err)
	}

	if userPath != "" {
		data, err := os.ReadFile(userPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config: user config %s not found: %w", userPath, err)
			}
			return nil, fmt.Errorf("config: read user config %s: %w", userPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse user config %s: %w", userPath, err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides mutates cfg in place with ANNALINK_HOST,
// ANNALINK_PORT, and ANNALINK_DIFFICULTY when set. A malformed numeric
// override is ignored rather than failing the whole load: a typo'd env
// var shouldn't keep the node from starting with its file-resolved value.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANNALINK_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("ANNALINK_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("ANNALINK_DIFFICULTY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Difficulty = n
		}
	}
}
