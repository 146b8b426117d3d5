package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("LIBRIS_AUTH_SECRET", "s3cret")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Addr != DefaultAddr {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.RateCeiling != 5 || cfg.RateWindow != time.Minute {
		t.Fatalf("unexpected rate policy: %d/%v", cfg.RateCeiling, cfg.RateWindow)
	}
	if cfg.LoanPeriod != 7*24*time.Hour {
		t.Fatalf("unexpected loan period: %v", cfg.LoanPeriod)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LIBRIS_AUTH_SECRET", "s3cret")
	t.Setenv("LIBRIS_RATE_CEILING", "10")
	t.Setenv("LIBRIS_RATE_WINDOW", "30s")
	t.Setenv("LIBRIS_SESSION_TTL", "1h")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.RateCeiling != 10 || cfg.RateWindow != 30*time.Second || cfg.SessionTTL != time.Hour {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("LIBRIS_AUTH_SECRET", "s3cret")
	t.Setenv("LIBRIS_RATE_CEILING", "zero")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for non-numeric ceiling")
	}
}

func TestFromEnvRequiresSecret(t *testing.T) {
	t.Setenv("LIBRIS_AUTH_SECRET", "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error when secret is missing")
	}
}
