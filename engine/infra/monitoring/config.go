package monitoring

import (
	"fmt"
	"strings"
)

type Config struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path"    mapstructure:"path"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Path:    "/metrics",
	}
}

func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("monitoring path cannot be empty")
	}
	if c.Path[0] != '/' {
		return fmt.Errorf("monitoring path must start with '/': got %s", c.Path)
	}
	if strings.ContainsRune(c.Path, '?') {
		return fmt.Errorf("monitoring path cannot contain query parameters")
	}
	return nil
}
