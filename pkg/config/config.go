package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the scanner configuration loaded from .packscan.yaml.
// Flags override config values, which override defaults.
type Config struct {
	// Exclude lists extra directory names to skip during project detection
	Exclude []string `yaml:"exclude"`

	// Ecosystems restricts the scan (npm, maven, pip); empty means all
	Ecosystems []string `yaml:"ecosystems"`

	// Threats is the default threat CSV path
	Threats string `yaml:"threats"`

	// MaxFileSize is the per-file read bound in bytes (0 = built-in default)
	MaxFileSize int64 `yaml:"maxFileSize"`

	// ScanInstalled controls the node_modules installed-package scan
	ScanInstalled *bool `yaml:"scanInstalled"`

	// Output configuration
	Output struct {
		Format string `yaml:"format"` // text, json, sarif
		File   string `yaml:"file"`   // Output file path (stdout if empty)
	} `yaml:"output"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	config := &Config{
		Exclude: []string{},
	}
	config.Output.Format = "text"
	return config
}

// LoadConfig loads the configuration from the specified file path.
// If no path is provided, it looks for .packscan.yaml in the current directory.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		configPath = ".packscan.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// FindAndLoadConfig searches for .packscan.yaml in the scan root and its
// parents, so a repo-level config applies when scanning a subdirectory.
func FindAndLoadConfig(root string) (*Config, error) {
	currentDir := root
	for {
		configPath := filepath.Join(currentDir, ".packscan.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return LoadConfig(configPath)
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	return DefaultConfig(), nil
}
