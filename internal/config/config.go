// Package config loads the deploy manifest that replaces the hard-coded
// values a deploy script would otherwise carry: application and environment
// names, buckets, the distribution id, and the frontend build command.
package config

import (
	"fmt"
	"os"

	"github.com/pitchlab/stack-deployer/internal/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the deploy manifest is looked up when --config is not set.
const DefaultPath = "deploy.yml"

// Backend configures the API half of the stack: the directory that gets
// packaged and the hosting application/environment the archive is released to.
type Backend struct {
	Application string            `yaml:"application"`
	Environment string            `yaml:"environment"`
	SourceDir   string            `yaml:"source_dir"`
	Bucket      string            `yaml:"bucket"`
	KeyPrefix   string            `yaml:"key_prefix"`
	Exclude     []string          `yaml:"exclude"`
	Tags        map[string]string `yaml:"tags"`
}

// Frontend configures the static half: the build command that runs, the
// bucket the output mirrors to, and the distribution whose cache is
// invalidated afterwards.
type Frontend struct {
	ProjectDir     string   `yaml:"project_dir"`
	BuildCommand   []string `yaml:"build_command"`
	BuildDir       string   `yaml:"build_dir"`
	Bucket         string   `yaml:"bucket"`
	Prefix         string   `yaml:"prefix"`
	DistributionID string   `yaml:"distribution_id"`
	Paths          []string `yaml:"paths"`
	Prune          *bool    `yaml:"prune"`
}

// History configures optional release bookkeeping in DynamoDB. When enabled
// and no table is named, the table defaults to {app}-releases.
type History struct {
	Enabled bool   `yaml:"enabled"`
	Table   string `yaml:"table"`
}

// Config is the parsed deploy manifest.
type Config struct {
	App      string   `yaml:"app"`
	Region   string   `yaml:"region"`
	Backend  Backend  `yaml:"backend"`
	Frontend Frontend `yaml:"frontend"`
	History  History  `yaml:"history"`
}

// Load reads and parses the deploy manifest at path and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deploy manifest %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse deploy manifest %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend.KeyPrefix == "" {
		c.Backend.KeyPrefix = "releases"
	}
	if len(c.Frontend.BuildCommand) == 0 {
		c.Frontend.BuildCommand = []string{"npm", "run", "build"}
	}
	if c.Frontend.BuildDir == "" {
		c.Frontend.BuildDir = "build"
	}
	if len(c.Frontend.Paths) == 0 {
		c.Frontend.Paths = []string{"/*"}
	}
}

// PruneEnabled reports whether orphaned site objects should be removed during
// a frontend publish. Mirroring is the default; prune: false opts out.
func (f Frontend) PruneEnabled() bool {
	return f.Prune == nil || *f.Prune
}

// Validate checks the fields every command needs.
func (c *Config) Validate() error {
	if c.App == "" {
		return fmt.Errorf("%w: app is required", errors.ErrInvalidConfig)
	}
	return nil
}

// ValidateBackend checks the fields the backend pipeline needs.
func (c *Config) ValidateBackend() error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch {
	case c.Backend.Application == "":
		return fmt.Errorf("%w: backend.application is required", errors.ErrInvalidConfig)
	case c.Backend.Environment == "":
		return fmt.Errorf("%w: backend.environment is required", errors.ErrInvalidConfig)
	case c.Backend.SourceDir == "":
		return fmt.Errorf("%w: backend.source_dir is required", errors.ErrInvalidConfig)
	case c.Backend.Bucket == "":
		return fmt.Errorf("%w: backend.bucket is required", errors.ErrInvalidConfig)
	}
	return nil
}

// ValidateFrontend checks the fields the frontend pipeline needs.
func (c *Config) ValidateFrontend() error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch {
	case c.Frontend.ProjectDir == "":
		return fmt.Errorf("%w: frontend.project_dir is required", errors.ErrInvalidConfig)
	case c.Frontend.Bucket == "":
		return fmt.Errorf("%w: frontend.bucket is required", errors.ErrInvalidConfig)
	case c.Frontend.DistributionID == "":
		return fmt.Errorf("%w: frontend.distribution_id is required", errors.ErrInvalidConfig)
	}
	return nil
}
