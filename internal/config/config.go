// Package config loads the xldctl configuration.
//
// Values come from XLDCTL_* environment variables, optionally seeded from a
// .env file in the working directory. Nesting uses the first underscore after
// the prefix, so XLDCTL_SERVER_MAX_RETRIES maps to server.max_retries.
// Command-line flags are applied on top by the caller before Validate.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	// Loads .env into the process environment before anything reads it.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "XLDCTL_"

const (
	defaultURL            = "http://localhost:4516"
	defaultMaxRetries     = 3
	defaultTimeoutSeconds = 30
	defaultPollIntervalMs = 1000
	defaultLogLevel       = "info"
)

// Config is the root configuration of xldctl.
type Config struct {
	Server ServerConfig `koanf:"server" validate:"required"`
	Log    LogConfig    `koanf:"log"`
}

// ServerConfig describes how to reach the deployment server.
type ServerConfig struct {
	URL            string `koanf:"url" validate:"required,url"`
	Username       string `koanf:"username"`
	Password       string `koanf:"password" validate:"required_with=Username"`
	MaxRetries     int    `koanf:"max_retries" validate:"gte=0"`
	TimeoutSeconds int    `koanf:"timeout_seconds" validate:"gt=0"`
	PollIntervalMs int    `koanf:"poll_interval_ms" validate:"gt=0"`
}

// LogConfig controls console logging.
type LogConfig struct {
	Level   string `koanf:"level" validate:"oneof=trace debug info warn error"`
	NoColor bool   `koanf:"no_color"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:            defaultURL,
			MaxRetries:     defaultMaxRetries,
			TimeoutSeconds: defaultTimeoutSeconds,
			PollIntervalMs: defaultPollIntervalMs,
		},
		Log: LogConfig{Level: defaultLogLevel},
	}
}

// Load reads the environment on top of Default. It does not validate.
func Load() (*Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// envKey maps XLDCTL_SERVER_MAX_RETRIES to server.max_retries.
func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
}

// Validate checks the configuration and reports every invalid field.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid %s", strings.Join(msgs, ", "))
}

// ClientConfig returns the settings for xldeploy.NewClient.
func (c *Config) ClientConfig() xldeploy.ClientConfig {
	return xldeploy.ClientConfig{
		URL:            c.Server.URL,
		Username:       c.Server.Username,
		Password:       c.Server.Password,
		MaxRetries:     c.Server.MaxRetries,
		TimeoutSeconds: c.Server.TimeoutSeconds,
	}
}

// PollInterval returns the task polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Server.PollIntervalMs) * time.Millisecond
}
