package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TENAUTH_AUTH_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.AccessTTL != time.Hour {
		t.Fatalf("unexpected access ttl: %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected refresh ttl: %v", cfg.RefreshTTL)
	}
	if cfg.ResetTTL != 15*time.Minute {
		t.Fatalf("unexpected reset ttl: %v", cfg.ResetTTL)
	}
	if cfg.BaseDomain != "tenauth.dev" {
		t.Fatalf("unexpected base domain: %s", cfg.BaseDomain)
	}
}

func TestLoadRejectsInvertedLifetimes(t *testing.T) {
	t.Setenv("TENAUTH_ACCESS_TTL", "10h")
	t.Setenv("TENAUTH_REFRESH_TTL", "1h")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when refresh ttl is shorter than access ttl")
	}
}
