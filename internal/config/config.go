// Package config reads the process configuration once at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/fridge/internal/session"
	"github.com/ovaphlow/fridge/pkg/database"
	"github.com/ovaphlow/fridge/pkg/utilities"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds everything the server needs. Build it with Load and pass it
// down; nothing else reads the environment.
type Config struct {
	Env      string
	HTTPAddr string
	// Store selects the user store: postgres or memory.
	Store    string
	Database database.Config
	Log      utilities.Config
	Session  Session

	PasswordMinLength int
	IDStrategy        string
	SnowflakeNode     int64
	MetricsEnabled    bool
}

// Session configures the session codec.
type Session struct {
	// Secrets in rotation order: the first signs, all verify.
	Secrets   []string
	Ephemeral bool
	// EphemeralFallback is set when Ephemeral was chosen because no secret
	// was configured outside production.
	EphemeralFallback bool
	Secure            bool
	Encrypt           bool
}

// Load reads .env when present, then the environment, and validates the result.
func Load() (*Config, error) {
	// best-effort: a missing .env is not an error
	_ = godotenv.Load()

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables without validating it.
func FromEnv() *Config {
	env := strings.ToLower(getEnv("APP_ENV", EnvDevelopment))
	cfg := &Config{
		Env:      env,
		HTTPAddr: getEnv("HTTP_ADDR", "0.0.0.0:8431"),
		Store:    strings.ToLower(getEnv("STORE", StorePostgres)),
		Database: database.ConfigFromEnv(),
		Log:      utilities.ConfigFromEnv(),
		Session: Session{
			Secrets:   splitList(os.Getenv("SESSION_SECRET")),
			Ephemeral: getEnvAsBool("SESSION_EPHEMERAL", false),
			Secure:    getEnvAsBool("SESSION_SECURE", env == EnvProduction),
			Encrypt:   getEnvAsBool("SESSION_ENCRYPT", false),
		},
		PasswordMinLength: getEnvAsInt("PASSWORD_MIN_LENGTH", 5),
		IDStrategy:        strings.ToLower(getEnv("ID_STRATEGY", "ksuid")),
		SnowflakeNode:     int64(getEnvAsInt("SNOWFLAKE_NODE", 1)),
		MetricsEnabled:    getEnvAsBool("METRICS_ENABLED", true),
	}
	if len(cfg.Session.Secrets) == 0 && !cfg.Session.Ephemeral && env != EnvProduction {
		cfg.Session.Ephemeral = true
		cfg.Session.EphemeralFallback = true
	}
	return cfg
}

// Production reports whether the production posture applies.
func (c *Config) Production() bool { return c.Env == EnvProduction }

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		errs = append(errs, fmt.Errorf("APP_ENV must be %s or %s, got %q", EnvDevelopment, EnvProduction, c.Env))
	}
	if c.Store != StorePostgres && c.Store != StoreMemory {
		errs = append(errs, fmt.Errorf("STORE must be %s or %s, got %q", StorePostgres, StoreMemory, c.Store))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}
	switch {
	case c.Session.Ephemeral && len(c.Session.Secrets) > 0:
		errs = append(errs, errors.New("SESSION_EPHEMERAL cannot be combined with SESSION_SECRET"))
	case !c.Session.Ephemeral && len(c.Session.Secrets) == 0:
		errs = append(errs, errors.New("SESSION_SECRET is required in production (set SESSION_EPHEMERAL=1 to accept sessions that die on restart)"))
	}
	if c.PasswordMinLength < 1 {
		errs = append(errs, fmt.Errorf("PASSWORD_MIN_LENGTH must be positive, got %d", c.PasswordMinLength))
	}
	if c.IDStrategy != "ksuid" && c.IDStrategy != "snowflake" {
		errs = append(errs, fmt.Errorf("ID_STRATEGY must be ksuid or snowflake, got %q", c.IDStrategy))
	}
	if c.IDStrategy == "snowflake" && (c.SnowflakeNode < 0 || c.SnowflakeNode > 1023) {
		errs = append(errs, fmt.Errorf("SNOWFLAKE_NODE must be within 0-1023, got %d", c.SnowflakeNode))
	}
	return errors.Join(errs...)
}

// SessionOptions translates the session settings for session.New.
func (c *Config) SessionOptions() session.Options {
	opts := session.Options{
		Secrets: c.Session.Secrets,
		Mode:    session.SecretStatic,
		Secure:  c.Session.Secure,
		Encrypt: c.Session.Encrypt,
	}
	if c.Session.Ephemeral {
		opts.Secrets = nil
		opts.Mode = session.SecretEphemeral
	}
	return opts
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
