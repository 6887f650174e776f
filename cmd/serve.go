package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fundrequest/claim-service/internal/api"
	"github.com/fundrequest/claim-service/internal/app"
	"github.com/fundrequest/claim-service/internal/store"
	"github.com/fundrequest/claim-service/pkg/rabbitmq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the claim API and consume request claimed events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info("starting claim-service", "component", "bootstrap", "port", cfg.ServerPort)

	pool, db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if cfg.DBAutoMigrate {
		if err := store.Migrate(db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("database migrated", "component", "bootstrap")
	}
	repository := store.NewGormRepository(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	publisher := newPublisher(cfg)
	defer publisher.Close()

	claimService := newClaimService(cfg, repository, publisher, registry)

	limiter, closeLimiter := newRateLimiter(ctx, cfg)
	defer closeLimiter()
	var rateLimiter api.RateLimiter
	if limiter != nil {
		rateLimiter = limiter
	}

	// Request claimed events finalize the claim submissions of a request.
	rabbitConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger)
	if err != nil {
		return fmt.Errorf("rabbitmq consumer init failed: %w", err)
	}
	defer rabbitConsumer.Close()

	claimConsumer := app.NewClaimEventConsumer(claimService, logger)
	if err := rabbitConsumer.ConsumeWithBindings(cfg.EventsExchange, cfg.ClaimEventQueue, map[string]rabbitmq.HandlerFunc{
		app.RoutingKeyRequestClaimed: claimConsumer.HandleMessage,
	}); err != nil {
		return fmt.Errorf("claim consumer start failed: %w", err)
	}

	jobs := app.NewJobs(claimService, cfg.StaleClaimAfter(), logger)
	scheduler := app.NewScheduler(jobs, logger, cfg.StaleClaimJobSchedule)
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer func() { <-scheduler.Stop().Done() }()

	if cfg.JWKSURL == "" {
		logger.Warn("jwks url missing; authenticated routes will reject every token", "component", "bootstrap", "env", "JWKS_URL")
	}
	auth := api.JWTAuthMiddleware(api.NewJWKSKeySource(cfg.JWKSURL), api.AuthOptions{
		Audience: cfg.JWTAudience,
		Issuer:   cfg.JWTIssuer,
	}, logger)

	handlers := api.NewClaimHandlers(claimService, rateLimiter, logger)
	server := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: api.ClaimRoutes(handlers, api.RouterOptions{
			Auth:           auth,
			Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			AllowedOrigins: cfg.AllowedOrigins(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "component", "http", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server stopped unexpectedly: %w", err)
	case <-rabbitConsumer.Done():
		logger.Error("rabbitmq consumer stopped; shutting down", "component", "bootstrap")
	}
	logger.Info("shutdown started", "component", "http")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "component", "http", "error", err)
	}

	logger.Info("shutdown complete", "component", "http")
	return nil
}
