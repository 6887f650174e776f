package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{"SERVER_PORT", "PORT", "EVENTS_EXCHANGE", "CLAIM_EVENT_QUEUE", "STALE_CLAIM_JOB_SCHEDULE",
		"STALE_CLAIM_AFTER_HOURS", "CLAIM_RATE_LIMIT_PER_MINUTE", "REDIS_RATE_LIMIT_PREFIX", "ALLOWED_ORIGINS"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.EventsExchange != "fundrequest.events" || cfg.ClaimEventQueue != "claim_service.request_claimed" {
		t.Fatalf("unexpected messaging defaults: %q %q", cfg.EventsExchange, cfg.ClaimEventQueue)
	}
	if cfg.StaleClaimAfter() != 72*time.Hour {
		t.Fatalf("expected stale claim threshold of 72h, got %s", cfg.StaleClaimAfter())
	}
	if cfg.ClaimRateLimitPerMinute != 10 {
		t.Fatalf("expected default claim rate limit 10, got %d", cfg.ClaimRateLimitPerMinute)
	}
	if origins := cfg.AllowedOrigins(); len(origins) != 1 || origins[0] != "*" {
		t.Fatalf("expected wildcard origin by default, got %v", origins)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_NormalizesInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "CLAIM_RATE_LIMIT_PER_MINUTE", "-4")
	setEnvWithCleanup(t, "STALE_CLAIM_AFTER_HOURS", "0")
	setEnvWithCleanup(t, "REDIS_RATE_LIMIT_PREFIX", "   ")
	setEnvWithCleanup(t, "GITHUB_REQUESTS_PER_SECOND", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ClaimRateLimitPerMinute != 0 {
		t.Fatalf("expected negative rate limit to disable limiting, got %d", cfg.ClaimRateLimitPerMinute)
	}
	if cfg.StaleClaimAfterHours != 72 {
		t.Fatalf("expected stale threshold fallback, got %d", cfg.StaleClaimAfterHours)
	}
	if cfg.RedisRateLimitPrefix != "claim_service:rate_limit" {
		t.Fatalf("expected default prefix, got %q", cfg.RedisRateLimitPrefix)
	}
	if cfg.GithubRequestsPerSecond != 1 {
		t.Fatalf("expected github rate fallback, got %f", cfg.GithubRequestsPerSecond)
	}
}

func TestLoadConfig_ReadsDotEnvFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "GITHUB_TOKEN")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GITHUB_TOKEN=from-file\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.GithubToken != "from-file" {
		t.Fatalf("expected token from .env file, got %q", cfg.GithubToken)
	}
}

func TestTokenSymbols(t *testing.T) {
	cfg := Config{TokenSymbolsRaw: " 0xABC=FND, 0xdef = DAI ,broken,=X,0x1="}

	symbols := cfg.TokenSymbols()
	if len(symbols) != 2 {
		t.Fatalf("expected 2 symbols, got %v", symbols)
	}
	if symbols["0xabc"] != "FND" || symbols["0xdef"] != "DAI" {
		t.Fatalf("unexpected symbols %v", symbols)
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Config{AllowedOriginsRaw: "https://fundrequest.io, https://alpha.fundrequest.io,"}

	origins := cfg.AllowedOrigins()
	if len(origins) != 2 || origins[1] != "https://alpha.fundrequest.io" {
		t.Fatalf("unexpected origins %v", origins)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
