package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("crm-service")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServiceName != "crm-service" {
		t.Fatalf("service name = %q", cfg.ServiceName)
	}
	if cfg.Auth.MaxLoginAttempts != 5 {
		t.Fatalf("max login attempts = %d, want 5", cfg.Auth.MaxLoginAttempts)
	}
	if cfg.Auth.LockoutDuration != 30*time.Minute {
		t.Fatalf("lockout duration = %v, want 30m", cfg.Auth.LockoutDuration)
	}
	if len(cfg.Tenant.ReservedSubdomains) == 0 {
		t.Fatalf("no reserved subdomains configured")
	}
}

func TestGetEnvAsSlice(t *testing.T) {
	t.Setenv("TEST_SLICE_KEY", "a, b ,,c")
	got := getEnvAsSlice("TEST_SLICE_KEY", nil)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if got := getEnvAsSlice("TEST_SLICE_MISSING", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Fatalf("default not returned: %v", got)
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION_KEY", "45m")
	if got := getEnvAsDuration("TEST_DURATION_KEY", time.Hour); got != 45*time.Minute {
		t.Fatalf("got %v, want 45m", got)
	}

	t.Setenv("TEST_DURATION_BAD", "soon")
	if got := getEnvAsDuration("TEST_DURATION_BAD", time.Hour); got != time.Hour {
		t.Fatalf("bad value should fall back, got %v", got)
	}
}

func TestDSN(t *testing.T) {
	db := DBConfig{
		Host:     "db.internal",
		Port:     "5433",
		User:     "crm",
		Password: "secret",
		DBName:   "crm",
		SSLMode:  "require",
	}
	want := "host=db.internal port=5433 user=crm password=secret dbname=crm sslmode=require"
	if got := db.GetDSN(); got != want {
		t.Fatalf("GetDSN() = %q, want %q", got, want)
	}
}
