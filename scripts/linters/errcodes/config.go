package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config controls which files the checker visits and which findings
// fail the run.
type Config struct {
	ExcludePaths      []string          `yaml:"exclude_paths"`
	ForbiddenPatterns []string          `yaml:"forbidden_patterns"`
	PrefixOverrides   map[string]string `yaml:"prefix_overrides"`
	SkipTests         bool              `yaml:"skip_tests"`
	ExitOnUnused      bool              `yaml:"exit_on_unused"`
	ExitOnDuplicates  bool              `yaml:"exit_on_duplicates"`
	ExitOnFormat      bool              `yaml:"exit_on_format"`
	ExitOnPrefixes    bool              `yaml:"exit_on_prefixes"`
	ExitOnForbidden   bool              `yaml:"exit_on_forbidden"`
	Verbose           bool              `yaml:"verbose"`
}

// loadConfig loads configuration from a file, or returns defaults when
// the path is empty.
func loadConfig(configPath string) (*Config, error) {
	config := &Config{
		// cli and pkg/sdk wrap errors with go-faster/errors instead of
		// coded errors, and pkg/errors defines the validation itself.
		ExcludePaths: []string{
			"_examples/", ".git/", "data/", "logs/", "testdata/",
			"scripts/", "examples/", "cmd/", "cli/", "pkg/sdk/", "pkg/errors/",
		},
		ForbiddenPatterns: []string{`fmt\.Errorf\(`},
		PrefixOverrides: map[string]string{
			// pkg/errors declares the shared common.* codes
			"errors": "common",
		},
		SkipTests:        true,
		ExitOnUnused:     false,
		ExitOnDuplicates: true,
		ExitOnFormat:     true,
		ExitOnPrefixes:   false,
		ExitOnForbidden:  false,
		Verbose:          false,
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}
