// Package config resolves API credentials for the sample commands.
//
// Resolution order matches the original scripts: process environment
// first, then explicit --api-key/--api-secret flags, then a dotenv file
// passed with --env. A later source overrides an earlier one.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Credentials holds everything the API commands read from the environment.
type Credentials struct {
	APIHost   string `env:"API_HOST"`
	APIKey    string `env:"API_KEY"`
	APISecret string `env:"API_SECRET"`

	// Per-user inputs consumed by create-user and purge-user.
	UserEmail string `env:"USER_EMAIL"`
	UserSSHIP string `env:"USER_SSH_IP"`
}

// Overrides are the credential-related command line flags. Empty fields
// leave the environment value in place.
type Overrides struct {
	APIKey    string
	APISecret string
	EnvFile   string
}

// Load reads credentials from the process environment and applies the
// given overrides.
func Load(ov Overrides) (Credentials, error) {
	var creds Credentials
	if err := env.Parse(&creds); err != nil {
		return Credentials{}, fmt.Errorf("parse env: %w", err)
	}

	if ov.APIKey != "" {
		creds.APIKey = ov.APIKey
	}
	if ov.APISecret != "" {
		creds.APISecret = ov.APISecret
	}

	if ov.EnvFile != "" {
		if err := creds.applyEnvFile(ov.EnvFile); err != nil {
			return Credentials{}, err
		}
	}
	return creds, nil
}

// applyEnvFile overlays values from a dotenv-style file. Both the
// camel-case keys used by the downloadable credential files (apiKey,
// apiSecret) and the exported-variable spellings are accepted.
func (c *Credentials) applyEnvFile(path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}

	pick := func(keys ...string) (string, bool) {
		for _, k := range keys {
			if v, ok := values[k]; ok && v != "" {
				return v, true
			}
		}
		return "", false
	}

	if v, ok := pick("apiKey", "API_KEY"); ok {
		c.APIKey = v
	}
	if v, ok := pick("apiSecret", "API_SECRET"); ok {
		c.APISecret = v
	}
	if v, ok := pick("apiHost", "API_HOST"); ok {
		c.APIHost = v
	}
	if v, ok := pick("USER_EMAIL"); ok {
		c.UserEmail = v
	}
	if v, ok := pick("USER_SSH_IP"); ok {
		c.UserSSHIP = v
	}
	return nil
}

// RequireAPI validates the fields needed before any API call.
func (c Credentials) RequireAPI() error {
	if c.APIHost == "" {
		return errors.New("API_HOST is not set")
	}
	if c.APIKey == "" || c.APISecret == "" {
		return errors.New("API_KEY and API_SECRET must be set (environment, flags, or --env file)")
	}
	return nil
}
