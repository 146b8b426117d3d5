package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config collects every named option the service reads from the environment.
type Config struct {
	Addr        string
	PostgresDSN string
	RedisAddr   string

	AuthSecret string
	SessionTTL time.Duration

	LoanPeriod time.Duration

	RateWindow  time.Duration
	RateCeiling int
}

// Defaults for everything except the auth secret, which has no safe default.
const (
	DefaultAddr        = ":8080"
	DefaultSessionTTL  = 30 * time.Minute
	DefaultLoanPeriod  = 7 * 24 * time.Hour
	DefaultRateWindow  = time.Minute
	DefaultRateCeiling = 5
)

// FromEnv reads LIBRIS_* variables and applies defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:        getenv("LIBRIS_ADDR", DefaultAddr),
		PostgresDSN: os.Getenv("LIBRIS_PG_DSN"),
		RedisAddr:   os.Getenv("LIBRIS_REDIS_ADDR"),
		AuthSecret:  strings.TrimSpace(os.Getenv("LIBRIS_AUTH_SECRET")),
	}

	var err error
	if cfg.SessionTTL, err = getduration("LIBRIS_SESSION_TTL", DefaultSessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.LoanPeriod, err = getduration("LIBRIS_LOAN_PERIOD", DefaultLoanPeriod); err != nil {
		return Config{}, err
	}
	if cfg.RateWindow, err = getduration("LIBRIS_RATE_WINDOW", DefaultRateWindow); err != nil {
		return Config{}, err
	}
	if cfg.RateCeiling, err = getint("LIBRIS_RATE_CEILING", DefaultRateCeiling); err != nil {
		return Config{}, err
	}

	if cfg.AuthSecret == "" {
		return Config{}, fmt.Errorf("LIBRIS_AUTH_SECRET is required")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

func getint(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return v, nil
}
