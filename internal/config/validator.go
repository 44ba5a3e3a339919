package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration using struct tags and cross-field
// rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		return errors.New("storage.path is required for the sqlite driver")
	}
	if _, err := time.ParseDuration(c.Approval.TTL); err != nil {
		return fmt.Errorf("approval.ttl: invalid duration %q", c.Approval.TTL)
	}
	if _, err := time.ParseDuration(c.Gateway.ShellTimeout); err != nil {
		return fmt.Errorf("gateway.shell_timeout: invalid duration %q", c.Gateway.ShellTimeout)
	}
	for i, hash := range c.Admin.APIKeys {
		if !strings.HasPrefix(hash, "$argon2id$") {
			return fmt.Errorf("admin.api_keys[%d]: not an argon2id PHC hash", i)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to actionable
// messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
