package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values. They are read after
// the YAML is decoded so a .env file can carry secrets such as the DSN.
const (
	EnvMirrorDSN = "GOVAFFAIRS_MIRROR_DSN"
	EnvDataDir   = "GOVAFFAIRS_DATA_DIR"
)

func LoadConfig(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Printf("Warning: failed to close config file: %v", closeErr)
		}
	}()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.TargetsFile != "" {
		path := cfg.TargetsFile
		// Relative targets files live next to the config file
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(filePath), path)
		}
		targets, err := LoadTargets(path)
		if err != nil {
			return nil, err
		}
		cfg.Targets = append(cfg.Targets, targets...)
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if dsn := os.Getenv(EnvMirrorDSN); dsn != "" {
		c.Mirror.DSN = dsn
	}
	if dir := os.Getenv(EnvDataDir); dir != "" {
		c.Storage.DataDir = dir
	}
}
