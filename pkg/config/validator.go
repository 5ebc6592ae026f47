package config

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// snowflakePattern matches Discord snowflake identifiers.
var snowflakePattern = regexp.MustCompile(`^[0-9]{15,21}$`)

// RegisterCustomValidators registers custom validation functions
func RegisterCustomValidators(v *validator.Validate) error {
	return v.RegisterValidation("snowflake", validateSnowflake)
}

func validateSnowflake(fl validator.FieldLevel) bool {
	return snowflakePattern.MatchString(fl.Field().String())
}
