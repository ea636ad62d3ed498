// Package config loads the workspace's stencila.toml.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// RemoteEntry is one declarative remote binding in stencila.toml:
//
//	[[remotes]]
//	path = "docs/report.md"
//	url = "https://docs.google.com/document/d/..."
//	watch = true
type RemoteEntry struct {
	Path  string `toml:"path"`
	URL   string `toml:"url"`
	Watch bool   `toml:"watch,omitempty"`
}

// Models configures the model subsystem. When Providers is present only
// those providers are registered, regardless of the environment.
type Models struct {
	Providers []string `toml:"providers,omitempty"`
}

// Config is the parsed stencila.toml.
type Config struct {
	Remotes []RemoteEntry `toml:"remotes,omitempty"`
	Models  *Models       `toml:"models,omitempty"`
}

// FileName is the workspace config file name.
const FileName = "stencila.toml"

// Load reads the config from a workspace directory. A missing file is
// an empty config, not an error.
func Load(workspaceDir string) (*Config, error) {
	path := filepath.Join(workspaceDir, FileName)
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config back to the workspace directory.
func Save(workspaceDir string, cfg *Config) error {
	path := filepath.Join(workspaceDir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return toml.NewEncoder(f).Encode(cfg)
}

// ConfiguredProviders returns the models.providers gate, nil when the
// config does not constrain providers.
func (c *Config) ConfiguredProviders() []string {
	if c == nil || c.Models == nil {
		return nil
	}
	return c.Models.Providers
}
