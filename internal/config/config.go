// Package config loads server settings from the environment.
//
// A .env file in the working directory is read first when present, so a
// developer can keep local settings out of their shell profile. Real
// environment variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the server reads at start-up.
type Config struct {
	Addr        string
	DatabaseURL string

	Server struct {
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		IdleTimeout  time.Duration
	}

	JWT struct {
		Secret string
		TTL    time.Duration
	}

	Log struct {
		Level  slog.Level
		Format string // "text" or "json"
	}

	Redis struct {
		URL     string // empty disables the relay
		Channel string
	}

	Admin struct {
		Email    string
		Password string
		Name     string
	}

	SeedDemo      bool
	ShiftEarnings float64

	AuthRateLimit float64 // requests per second per client
	AuthRateBurst int

	CORSOrigin string
}

// DefaultDatabaseURL enables WAL so readers don't block writers, and a
// busy timeout so concurrent writers wait instead of failing.
const DefaultDatabaseURL = "izza.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

const insecureSecret = "changeme-use-a-real-secret-in-production"

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.Addr = getenv("ADDR", ":8080")
	cfg.DatabaseURL = getenv("DATABASE_URL", DefaultDatabaseURL)

	cfg.Server.ReadTimeout = getDuration("SERVER_READ_TIMEOUT", 10*time.Second, &errs)
	cfg.Server.WriteTimeout = getDuration("SERVER_WRITE_TIMEOUT", 15*time.Second, &errs)
	cfg.Server.IdleTimeout = getDuration("SERVER_IDLE_TIMEOUT", 60*time.Second, &errs)

	cfg.JWT.Secret = getenv("JWT_SECRET", insecureSecret)
	cfg.JWT.TTL = getDuration("TOKEN_TTL", 72*time.Hour, &errs)

	if err := cfg.Log.Level.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	cfg.Log.Format = strings.ToLower(getenv("LOG_FORMAT", "text"))

	cfg.Redis.URL = getenv("REDIS_URL", "")
	cfg.Redis.Channel = getenv("REDIS_CHANNEL", "izza:notifications")

	cfg.Admin.Email = getenv("ADMIN_EMAIL", "")
	cfg.Admin.Password = getenv("ADMIN_PASSWORD", "")
	cfg.Admin.Name = getenv("ADMIN_NAME", "Administrator")

	cfg.SeedDemo = getBool("SEED_DEMO", false, &errs)
	cfg.ShiftEarnings = getFloat("SHIFT_EARNINGS", 500, &errs)
	cfg.AuthRateLimit = getFloat("AUTH_RATE_LIMIT", 1, &errs)
	cfg.AuthRateBurst = getInt("AUTH_RATE_BURST", 5, &errs)

	cfg.CORSOrigin = getenv("CORS_ORIGIN", "*")

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}
	if c.ShiftEarnings < 0 {
		errs = append(errs, errors.New("SHIFT_EARNINGS must not be negative"))
	}
	if c.AuthRateLimit <= 0 || c.AuthRateBurst <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT and AUTH_RATE_BURST must be positive"))
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

// InsecureSecret reports whether the JWT secret is still the built-in
// development default.
func (c *Config) InsecureSecret() bool {
	return c.JWT.Secret == insecureSecret
}

// getenv returns the value of the named environment variable, or fallback
// if the variable is not set or is empty.
func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func getInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func getBool(key string, fallback bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}
