package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SaveToFile writes the configuration as YAML, creating parent directories
func SaveToFile(file *File, path string) error {
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if file.Created.IsZero() {
		file.Created = time.Now().UTC().Truncate(time.Second)
	}

	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// LoadFromFile reads and validates a YAML configuration
func LoadFromFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &file, nil
}

// GetConfigPath returns the per-device configuration path for a bridge serial
func GetConfigPath(serial string) string {
	return filepath.Join("etc", "asfs", fmt.Sprintf("%s.yaml", serial))
}
