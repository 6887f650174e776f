package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fundrequest/claim-service/internal/app"
	"github.com/fundrequest/claim-service/internal/config"
	"github.com/fundrequest/claim-service/internal/github"
	"github.com/fundrequest/claim-service/internal/store"
	"github.com/fundrequest/claim-service/pkg/githubclient"
	"github.com/fundrequest/claim-service/pkg/rabbitmq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// openDatabase connects the pgx pool and wraps it in gorm. The caller closes the pool.
func openDatabase(ctx context.Context, cfg config.Config) (*pgxpool.Pool, *gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL must be configured")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	db, err := store.OpenPostgres(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("database connected", "component", "bootstrap")
	return pool, db, nil
}

// newClaimService builds the claim service and the collaborators it needs.
func newClaimService(cfg config.Config, repo store.Repository, publisher rabbitmq.Publisher, registry prometheus.Registerer) *app.ClaimService {
	githubClient := githubclient.NewClient(cfg.GithubAPIBaseURL, cfg.GithubToken, githubclient.Options{
		RequestsPerSecond: cfg.GithubRequestsPerSecond,
		CacheTTL:          cfg.GithubCacheTTL(),
	})
	if cfg.GithubToken == "" {
		logger.Warn("github token missing; using unauthenticated rate limits", "component", "bootstrap", "env", "GITHUB_TOKEN")
	}

	return app.NewClaimService(
		repo,
		github.NewClaimResolver(githubClient, logger),
		app.NewRequestDtoMapper(repo, cfg.TokenSymbols()),
		app.NewClaimDtoAggregator(),
		publisher,
		app.NewMetrics(registry),
		logger,
		cfg.EventsExchange,
	)
}

// newPublisher connects the event producer, falling back to a logging publisher when
// RabbitMQ is unreachable.
func newPublisher(cfg config.Config) rabbitmq.Publisher {
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", "component", "bootstrap", "error", err)
		return &rabbitmq.FallbackPublisher{Logger: logger}
	}
	logger.Info("rabbitmq producer connected", "component", "bootstrap")
	return producer
}

// newRateLimiter returns nil when claim rate limiting is disabled or Redis is unavailable.
func newRateLimiter(ctx context.Context, cfg config.Config) (*app.RedisClaimRateLimiter, func()) {
	noop := func() {}
	if cfg.ClaimRateLimitPerMinute <= 0 {
		return nil, noop
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Warn("redis url missing; claim rate limiting disabled", "component", "bootstrap", "env", "REDIS_URL")
		return nil, noop
	}
	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; claim rate limiting disabled", "component", "bootstrap", "error", err)
		return nil, noop
	}

	client := redis.NewClient(redisOptions)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; claim rate limiting disabled", "component", "bootstrap", "error", err)
		_ = client.Close()
		return nil, noop
	}
	logger.Info("redis connected", "component", "bootstrap")
	limiter := app.NewRedisClaimRateLimiter(client, cfg.RedisRateLimitPrefix, cfg.ClaimRateLimitPerMinute, time.Minute)
	return limiter, func() { _ = client.Close() }
}
