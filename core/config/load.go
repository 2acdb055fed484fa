package config

import (
	"bytes"
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory.
func Load(path string) (*Configuration, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs loads the configuration from the directory on fs.
func LoadFs(fs afero.Fs, path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}
	// A relative base would escape afero.BasePathFs's prefix check.
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	configContents, err := afero.ReadFile(fs, filepath.Join(path, ConfigurationName))
	if err != nil {
		return nil, err
	}
	var out Configuration
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigurationName, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigurationName, err)
	}
	out.configurationDir = path
	out.configFs = afero.NewBasePathFs(fs, path)
	return &out, nil
}

// Initialize writes the default configuration to dir unless one is already
// there and loads it.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	return InitializeFs(afero.NewOsFs(), dir, logger)
}

// InitializeFs is Initialize on fs.
func InitializeFs(fs afero.Fs, dir string, logger *log.Logger) (*Configuration, error) {
	if err := fs.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	configPath := filepath.Join(dir, ConfigurationName)
	switch existing, err := afero.ReadFile(fs, configPath); {
	case err == nil && bytes.Equal(existing, defaultConfigData):
		logger.Printf("%s is up to date\n", configPath)
	case err == nil:
		logger.Printf("%s already exists, leaving it alone\n", configPath)
	default:
		logger.Printf("writing %s\n", configPath)
		if err := afero.WriteFile(fs, configPath, defaultConfigData, 0600); err != nil {
			return nil, err
		}
	}

	return LoadFs(fs, dir)
}
