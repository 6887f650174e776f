/**
 * @description
 * This package handles the configuration management for the claim-service. It uses the
 * Viper library to read configuration from environment variables and an optional .env
 * file, and normalizes the values the rest of the service relies on.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultRateLimitPrefix      = "claim_service:rate_limit"
	defaultClaimRateLimit       = 10
	defaultStaleClaimJobSched   = "0 * * * *"
	defaultStaleClaimAfterHours = 72
)

// Config holds all the configuration variables for the claim-service.
type Config struct {
	ServerPort              string  `mapstructure:"SERVER_PORT"`
	DatabaseURL             string  `mapstructure:"DATABASE_URL"`
	DBAutoMigrate           bool    `mapstructure:"DB_AUTO_MIGRATE"`
	RedisURL                string  `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string  `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	ClaimRateLimitPerMinute int     `mapstructure:"CLAIM_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL             string  `mapstructure:"RABBITMQ_URL"`
	EventsExchange          string  `mapstructure:"EVENTS_EXCHANGE"`
	ClaimEventQueue         string  `mapstructure:"CLAIM_EVENT_QUEUE"`
	JWKSURL                 string  `mapstructure:"JWKS_URL"`
	JWTAudience             string  `mapstructure:"JWT_AUDIENCE"`
	JWTIssuer               string  `mapstructure:"JWT_ISSUER"`
	GithubAPIBaseURL        string  `mapstructure:"GITHUB_API_BASE_URL"`
	GithubToken             string  `mapstructure:"GITHUB_TOKEN"`
	GithubRequestsPerSecond float64 `mapstructure:"GITHUB_REQUESTS_PER_SECOND"`
	GithubCacheTTLSeconds   int     `mapstructure:"GITHUB_CACHE_TTL_SECONDS"`
	StaleClaimJobSchedule   string  `mapstructure:"STALE_CLAIM_JOB_SCHEDULE"`
	StaleClaimAfterHours    int     `mapstructure:"STALE_CLAIM_AFTER_HOURS"`
	TokenSymbolsRaw         string  `mapstructure:"TOKEN_SYMBOLS"`
	AllowedOriginsRaw       string  `mapstructure:"ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables and an optional .env file
// in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DB_AUTO_MIGRATE", false)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("CLAIM_RATE_LIMIT_PER_MINUTE", defaultClaimRateLimit)
	viper.SetDefault("EVENTS_EXCHANGE", "fundrequest.events")
	viper.SetDefault("CLAIM_EVENT_QUEUE", "claim_service.request_claimed")
	viper.SetDefault("GITHUB_API_BASE_URL", "https://api.github.com")
	viper.SetDefault("GITHUB_REQUESTS_PER_SECOND", 1.0)
	viper.SetDefault("GITHUB_CACHE_TTL_SECONDS", 60)
	viper.SetDefault("STALE_CLAIM_JOB_SCHEDULE", defaultStaleClaimJobSched) // Every hour.
	viper.SetDefault("STALE_CLAIM_AFTER_HOURS", defaultStaleClaimAfterHours)
	viper.SetDefault("ALLOWED_ORIGINS", "*")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("DB_AUTO_MIGRATE")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "CLAIM_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("CLAIM_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("CLAIM_EVENT_QUEUE")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("JWT_AUDIENCE")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("GITHUB_API_BASE_URL")
	_ = viper.BindEnv("GITHUB_TOKEN")
	_ = viper.BindEnv("GITHUB_REQUESTS_PER_SECOND")
	_ = viper.BindEnv("GITHUB_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("STALE_CLAIM_JOB_SCHEDULE")
	_ = viper.BindEnv("STALE_CLAIM_AFTER_HOURS")
	_ = viper.BindEnv("TOKEN_SYMBOLS")
	_ = viper.BindEnv("ALLOWED_ORIGINS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "component", "config", "error", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}
	if config.ClaimRateLimitPerMinute < 0 {
		slog.Warn("negative claim rate limit configured; disabling", "component", "config", "value", config.ClaimRateLimitPerMinute)
		config.ClaimRateLimitPerMinute = 0
	}
	config.StaleClaimJobSchedule = strings.TrimSpace(config.StaleClaimJobSchedule)
	if config.StaleClaimJobSchedule == "" {
		config.StaleClaimJobSchedule = defaultStaleClaimJobSched
	}
	if config.StaleClaimAfterHours <= 0 {
		config.StaleClaimAfterHours = defaultStaleClaimAfterHours
	}
	if config.GithubRequestsPerSecond <= 0 {
		config.GithubRequestsPerSecond = 1
	}
	if config.GithubCacheTTLSeconds < 0 {
		config.GithubCacheTTLSeconds = 0
	}

	return
}

// StaleClaimAfter is the age after which a PENDING request claim is flagged.
func (c Config) StaleClaimAfter() time.Duration {
	return time.Duration(c.StaleClaimAfterHours) * time.Hour
}

func (c Config) GithubCacheTTL() time.Duration {
	return time.Duration(c.GithubCacheTTLSeconds) * time.Second
}

// TokenSymbols parses TOKEN_SYMBOLS ("0xabc=FND,0xdef=DAI") into an address to symbol map.
// Malformed entries are skipped.
func (c Config) TokenSymbols() map[string]string {
	symbols := make(map[string]string)
	for _, entry := range strings.Split(c.TokenSymbolsRaw, ",") {
		address, symbol, ok := strings.Cut(entry, "=")
		address, symbol = strings.TrimSpace(address), strings.TrimSpace(symbol)
		if !ok || address == "" || symbol == "" {
			continue
		}
		symbols[strings.ToLower(address)] = symbol
	}
	return symbols
}

// AllowedOrigins returns the CORS origins as a list.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOriginsRaw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
