package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables carrying secrets. They are never read from flags.
const (
	EnvEmail    = "EMAIL"
	EnvPassword = "PASSWORD"
	EnvAPIKey   = "OPENAI_API_KEY"
)

// EnvString returns the trimmed value of key and whether it was set to
// something non-blank.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer. A missing key is not an error.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration parses key with time.ParseDuration. A missing key is not an error.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// LoadCredentials copies the login credential and text-service key from the
// environment into c.
func (c *Config) LoadCredentials() {
	if email, ok := EnvString(EnvEmail); ok {
		c.Credential.Email = email
	}
	if password, ok := os.LookupEnv(EnvPassword); ok && password != "" {
		c.Credential.Password = password
	}
	if key, ok := EnvString(EnvAPIKey); ok {
		c.APIKey = key
	}
}

