package config

import (
	"fmt"
	"slices"
)

// validSSLModes are the sslmode values accepted by PostgreSQL.
var validSSLModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// Validate performs range and consistency checks on the configuration.
// Returns a sentinel error (wrapped with detail) on the first violation.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %.2f not in [0.0, 2.0]", ErrInvalidTemperature, c.Temperature)
	}

	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("%w: %d not in [1, 65535]", ErrInvalidServerPort, c.ServerPort)
	}

	if c.PollTimeoutSecs < 1 || c.PollTimeoutSecs > 300 {
		return fmt.Errorf("%w: %d not in [1, 300]", ErrInvalidPollTimeout, c.PollTimeoutSecs)
	}

	if c.HasPostgres() {
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: %d not in [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
		}
		if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
			return fmt.Errorf("%w: %q not one of %v", ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
		}
	}

	return nil
}

// ValidateBot performs the additional checks required by the bot command.
func (c *Config) ValidateBot() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.HasTelegram() {
		return fmt.Errorf("%w: set TELEGRAM_BOT_TOKEN", ErrMissingTelegramToken)
	}
	return nil
}
