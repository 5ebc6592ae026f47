package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// loader implements the Service interface for configuration management.
type loader struct {
	koanf     *koanf.Koanf
	validator *validator.Validate
}

// sensitiveStringDecodeHook is a mapstructure decode hook that converts strings to SensitiveString
func sensitiveStringDecodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(SensitiveString("")) {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		return SensitiveString(v), nil
	case []byte:
		return SensitiveString(v), nil
	default:
		return data, nil
	}
}

// NewService creates a new configuration service with validation support.
func NewService() Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		panic(fmt.Sprintf("config: registering validators: %v", err))
	}
	return &loader{
		koanf:     koanf.New("."),
		validator: v,
	}
}

// Load applies, lowest precedence first: defaults, non-CLI sources in the
// order given (such as a YAML file then a .env file), the process
// environment, then CLI sources.
func (l *loader) Load(_ context.Context, sources ...Source) (*Config, error) {
	l.koanf = koanf.New(".")

	if err := l.loadDefaults(); err != nil {
		return nil, err
	}

	var late []Source
	for _, source := range sources {
		if source == nil {
			continue
		}
		if source.Type() == SourceCLI {
			late = append(late, source)
			continue
		}
		if err := l.loadSource(source); err != nil {
			return nil, err
		}
	}

	if err := l.loadEnvironment(); err != nil {
		return nil, err
	}

	for _, source := range late {
		if err := l.loadSource(source); err != nil {
			return nil, err
		}
	}

	return l.unmarshalAndValidate()
}

// loadDefaults loads the default configuration.
func (l *loader) loadDefaults() error {
	if err := l.koanf.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}
	return nil
}

// loadEnvironment loads only the environment variables named by env tags.
func (l *loader) loadEnvironment() error {
	envToPath := GenerateEnvToConfigMap()
	if err := l.koanf.Load(env.Provider(".", env.Opt{
		Prefix: "",
		TransformFunc: func(key string, value string) (string, any) {
			if configPath, exists := envToPath[key]; exists {
				return configPath, value
			}
			return "", nil
		},
	}), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}

// loadSource loads configuration from a single source.
func (l *loader) loadSource(source Source) error {
	data, err := source.Load()
	if err != nil {
		return fmt.Errorf("failed to load from source %s: %w", source.Type(), err)
	}
	if len(data) == 0 {
		return nil
	}
	for key, value := range flattenMap("", data) {
		if err := l.koanf.Set(key, value); err != nil {
			return fmt.Errorf("failed to set key %s from source %s: %w", key, source.Type(), err)
		}
	}
	return nil
}

// flattenMap flattens a nested map into dot-notation keys
func flattenMap(prefix string, m map[string]any) map[string]any {
	result := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nestedMap, ok := v.(map[string]any); ok {
			for fk, fv := range flattenMap(key, nestedMap) {
				result[fk] = fv
			}
		} else {
			result[key] = v
		}
	}
	return result
}

// unmarshalAndValidate unmarshals the configuration and validates it.
func (l *loader) unmarshalAndValidate() (*Config, error) {
	var config Config
	if err := l.koanf.UnmarshalWithConf("", &config, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &config,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				sensitiveStringDecodeHook,
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// Validate checks if the configuration meets all validation requirements.
func (l *loader) Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := l.validator.Struct(config); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := validateCustom(config); err != nil {
		return fmt.Errorf("custom validation failed: %w", err)
	}
	return nil
}

// validateCustom performs custom validation beyond struct tags.
func validateCustom(config *Config) error {
	if strings.ContainsAny(config.Store.LedgerFile, `/\`) ||
		strings.ContainsAny(config.Store.RedemptionsFile, `/\`) ||
		strings.ContainsAny(config.Store.LockFile, `/\`) {
		return fmt.Errorf("store file names must not contain path separators")
	}
	if config.Store.LedgerFile == config.Store.RedemptionsFile {
		return fmt.Errorf("ledger and redemption files must differ")
	}
	if config.Commands.RateLimit > 0 && config.Commands.RatePeriod <= 0 {
		return fmt.Errorf("commands.rate_period must be positive when rate_limit is set")
	}
	for path, spec := range map[string]string{
		"jobs.drift_check":    config.Jobs.DriftCheck,
		"jobs.cooldown_prune": config.Jobs.CooldownPrune,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid cron expression for %s: %w", path, err)
		}
	}
	return nil
}
