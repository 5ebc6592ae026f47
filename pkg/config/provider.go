package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// dotenvProvider reads a .env file without touching the process environment.
type dotenvProvider struct {
	path string
}

// NewDotenvProvider returns a source reading KEY=VALUE pairs from path. Only
// variables named by Config env tags are applied; a missing file is not an
// error.
func NewDotenvProvider(path string) Source {
	return &dotenvProvider{path: path}
}

func (d *dotenvProvider) Load() (map[string]any, error) {
	if d.path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading env file %s: %w", d.path, err)
	}
	envToPath := GenerateEnvToConfigMap()
	out := make(map[string]any)
	for key, value := range values {
		path, ok := envToPath[key]
		if !ok {
			continue
		}
		if err := setNested(out, path, value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *dotenvProvider) Type() SourceType {
	return SourceDotenv
}

// yamlProvider reads a YAML file keyed by koanf paths.
type yamlProvider struct {
	path string
}

// NewYAMLProvider returns a source reading the YAML file at path. A missing
// file is not an error.
func NewYAMLProvider(path string) Source {
	return &yamlProvider{path: path}
}

func (y *yamlProvider) Load() (map[string]any, error) {
	if y.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(y.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read YAML file: %w", err)
	}
	var config map[string]any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file: %w", err)
	}
	return filterNilValues(config), nil
}

func (y *yamlProvider) Type() SourceType {
	return SourceYAML
}

// filterNilValues drops nil leaves so they do not override lower layers.
func filterNilValues(m map[string]any) map[string]any {
	result := make(map[string]any)
	for k, v := range m {
		if v == nil {
			continue
		}
		if nestedMap, ok := v.(map[string]any); ok {
			if filtered := filterNilValues(nestedMap); len(filtered) > 0 {
				result[k] = filtered
			}
			continue
		}
		result[k] = v
	}
	return result
}

// cliProvider implements Source for command line flags.
type cliProvider struct {
	flags map[string]any
}

// NewCLIProvider creates a source from flag values keyed by config path
// (for example "server.port").
func NewCLIProvider(flags map[string]any) Source {
	return &cliProvider{flags: flags}
}

func (c *cliProvider) Load() (map[string]any, error) {
	config := make(map[string]any)
	for path, value := range c.flags {
		if err := setNested(config, path, value); err != nil {
			return nil, fmt.Errorf("failed to set CLI flag %s: %w", path, err)
		}
	}
	return config, nil
}

func (c *cliProvider) Type() SourceType {
	return SourceCLI
}

// setNested sets a value in a nested map structure using dot notation.
// It returns an error if a path conflict is encountered.
func setNested(m map[string]any, path string, value any) error {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	current := m
	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if _, exists := current[part]; !exists {
			current[part] = make(map[string]any)
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return fmt.Errorf("configuration conflict: key %q is not a map", strings.Join(parts[:i+1], "."))
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
	return nil
}
