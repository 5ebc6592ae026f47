package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Warning describes a configuration value the bot expects but can run without.
type Warning struct {
	Path   string
	EnvVar string
	Rule   string
}

func (w Warning) String() string {
	if w.EnvVar != "" {
		return fmt.Sprintf("%s not set (%s)", w.EnvVar, w.Path)
	}
	return fmt.Sprintf("%s not set", w.Path)
}

var expectValidator = newExpectValidator()

func newExpectValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("expect")
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("koanf"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Warnings lists expected values that are missing. Absence is never fatal:
// callers log these and continue.
func Warnings(cfg *Config) []Warning {
	if cfg == nil {
		return nil
	}
	err := expectValidator.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Warning{{Path: "config", Rule: err.Error()}}
	}
	out := make([]Warning, 0, len(verrs))
	for _, fe := range verrs {
		path := strings.TrimPrefix(fe.Namespace(), "Config.")
		out = append(out, Warning{
			Path:   path,
			EnvVar: GetEnvVarForConfigPath(path),
			Rule:   fe.Tag(),
		})
	}
	return out
}
