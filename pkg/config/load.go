package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

// Load reads a YAML config file, applies defaults and validates it.
// An empty path yields the defaults.
func Load(path string) (*AppConfig, []string, error) {
	cfg := &AppConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: reading config %s: %w", utils.ErrFilesystem, path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, nil, fmt.Errorf("%w: config YAML %s: %w", utils.ErrConfigValidation, path, err)
		}
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}
