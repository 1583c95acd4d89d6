package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type targetsFile struct {
	Targets []Target `yaml:"targets"`
}

// LoadTargets reads a standalone YAML file holding a list of targets
func LoadTargets(filePath string) ([]Target, error) {
	if filePath == "" {
		return nil, fmt.Errorf("targets file path is empty")
	}

	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("targets file not found: %s: %w", filePath, err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open targets file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close targets file: %v\n", closeErr)
		}
	}()

	var tf targetsFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&tf); err != nil {
		return nil, fmt.Errorf("failed to parse targets YAML: %w", err)
	}

	return tf.Targets, nil
}

// validateTargets checks the minimal fields and key uniqueness
func validateTargets(targets []Target) error {
	seen := make(map[string]bool, len(targets))
	for i, t := range targets {
		if t.Key == "" {
			return fmt.Errorf("targets[%d].key is required", i)
		}
		if t.URL == "" {
			return fmt.Errorf("targets[%d].url is required", i)
		}
		if t.CrawlerType == "" {
			return fmt.Errorf("targets[%d].crawler_type is required", i)
		}
		if seen[t.Key] {
			return fmt.Errorf("duplicate target key: %s", t.Key)
		}
		seen[t.Key] = true
	}
	return nil
}
