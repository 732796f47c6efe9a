package config

import (
	"encoding/json"
	"os"
	"strconv"

	"marketchat/internal/constants"
	"marketchat/internal/models"
)

var (
	ErrMissingBrokerURL = models.ConfigError{Message: "missing broker URL"}
	ErrMissingUserID    = models.ConfigError{Message: "missing user id"}
)

// LoadConfig reads, validates and defaults the application configuration.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Broker.URL == "" {
		return ErrMissingBrokerURL
	}
	if c.User.ID == "" {
		return ErrMissingUserID
	}

	if c.Broker.HeartbeatSec <= 0 {
		c.Broker.HeartbeatSec = constants.DefaultHeartbeatSec
	}
	if c.Broker.DialTimeoutSec <= 0 {
		c.Broker.DialTimeoutSec = constants.DefaultDialTimeoutSec
	}

	if c.Presence.TypingDebounceMs <= 0 {
		c.Presence.TypingDebounceMs = constants.DefaultTypingDebounceMs
	}
	if c.Presence.TypingExpiryMs <= 0 {
		c.Presence.TypingExpiryMs = constants.DefaultTypingExpiryMs
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultReconnectInitialMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultReconnectMaxSec * 1000
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultConnectMaxAttempts
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("MARKETCHAT_BROKER_URL"); url != "" {
		c.Broker.URL = url
	}
	if id := os.Getenv("MARKETCHAT_USER_ID"); id != "" {
		c.User.ID = id
	}
	if path := os.Getenv("MARKETCHAT_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if port := os.Getenv("MARKETCHAT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if login := os.Getenv("MARKETCHAT_BROKER_LOGIN"); login != "" {
		c.Broker.Login = login
	}
	if passcode := os.Getenv("MARKETCHAT_BROKER_PASSCODE"); passcode != "" {
		c.Broker.Passcode = passcode
	}
}
