package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearAPIEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"APP_ENV", "JWT_SECRET", "DATABASE_DRIVER", "TOKEN_TTL_HOURS", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadAPIConfigDefaults(t *testing.T) {
	clearAPIEnv(t)

	cfg := LoadAPIConfig()
	if cfg.Environment != EnvProduction {
		t.Fatalf("expected production env, got %q", cfg.Environment)
	}
	if cfg.Diagnostics() {
		t.Fatal("default config must not expose diagnostics")
	}
	if cfg.JWTSecret != "" {
		t.Fatal("fallback secret must not apply unless development is selected")
	}
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Fatalf("expected 7 day ttl, got %s", cfg.TokenTTL)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "http://localhost:5173" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSAllowedOrigins)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got %v", err)
	}
}

func TestExplicitDevelopmentUsesFallbackSecret(t *testing.T) {
	clearAPIEnv(t)
	t.Setenv("APP_ENV", " Development ")

	cfg := LoadAPIConfig()
	if cfg.Environment != EnvDevelopment || !cfg.Diagnostics() {
		t.Fatalf("expected development with diagnostics, got %q", cfg.Environment)
	}
	if cfg.JWTSecret == "" {
		t.Fatal("expected development fallback secret")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("development config should validate: %v", err)
	}
}

func TestUnknownEnvironmentRejectsFallbackSecret(t *testing.T) {
	cfg := APIConfig{Environment: "staging", DatabaseDriver: DriverSQLite, DatabaseURL: "x", JWTSecret: devJWTSecret, TokenTTL: time.Hour}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "fallback") {
		t.Fatalf("expected fallback secret error, got %v", err)
	}
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	cfg := LoadAPIConfig()
	if cfg.Diagnostics() {
		t.Fatal("production must not expose diagnostics")
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got %v", err)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := APIConfig{DatabaseDriver: "mysql", DatabaseURL: "x", JWTSecret: "s", TokenTTL: time.Hour}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "mysql") {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestGetStringSlice(t *testing.T) {
	t.Setenv("ORIGINS", " http://a.test , ,http://b.test")
	got := GetStringSlice("ORIGINS", nil)
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("unexpected slice: %v", got)
	}
	t.Setenv("ORIGINS", " , ")
	if got := GetStringSlice("ORIGINS", []string{"fallback"}); len(got) != 1 || got[0] != "fallback" {
		t.Fatalf("expected fallback, got %v", got)
	}
}

func TestGetIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "twelve")
	if got := GetInt("SOME_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DOTENV_ONLY=from-file\nDOTENV_SHADOWED=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("DOTENV_SHADOWED", "from-env")
	t.Cleanup(func() { os.Unsetenv("DOTENV_ONLY") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("DOTENV_ONLY"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("DOTENV_SHADOWED"); got != "from-env" {
		t.Fatalf("environment should win, got %q", got)
	}
}
