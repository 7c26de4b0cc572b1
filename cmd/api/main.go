// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kyora-app/kyora-backend/internal/account"
	"github.com/kyora-app/kyora-backend/internal/admin"
	"github.com/kyora-app/kyora-backend/internal/auth"
	"github.com/kyora-app/kyora-backend/internal/config"
	"github.com/kyora-app/kyora-backend/internal/core"
	"github.com/kyora-app/kyora-backend/internal/health"
	"github.com/kyora-app/kyora-backend/internal/identity"
	"github.com/kyora-app/kyora-backend/internal/middleware"
	"github.com/kyora-app/kyora-backend/internal/oauth"
	"github.com/kyora-app/kyora-backend/internal/onboarding"
	"github.com/kyora-app/kyora-backend/internal/payment"
	"github.com/kyora-app/kyora-backend/internal/plan"
	"github.com/kyora-app/kyora-backend/internal/server"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.GetKeyID(),
	)

	accountRepo := account.NewRepository(db.DB)
	authRepo := auth.NewRepository(db.DB)

	planRepo := plan.NewRepository(db.DB)
	planCatalog := plan.NewCatalog(planRepo)
	planHandler := plan.NewHandler(planRepo)

	provisioner := account.NewProvisioner(db.DB, accountRepo, nil)
	authSvc := auth.NewService(authRepo, jwtManager, provisioner)
	provisioner.SetTokenIssuer(authSvc)
	authHandler := auth.NewHandler(authSvc)

	sessionStore := onboarding.NewRepository(db.DB)
	onboardingSvc := onboarding.NewService(onboarding.ServiceConfig{
		Store:    sessionStore,
		Identity: identity.NewSender(redis.Client, cfg.Onboarding, cfg.Identity),
		OAuth:    oauth.NewExchanger(cfg.OAuth),
		Payment:  payment.NewClient(cfg.Payment),
		Plans:    planCatalog,
		Accounts: provisioner,
		Config:   cfg.Onboarding,
	})
	onboardingHandler := onboarding.NewHandler(
		onboardingSvc,
		cfg.Payment.ConfirmSecret,
	)

	healthHandler := health.NewHandler(db, redis)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
		Funnel:     sessionStore,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			KeyFunc:  middleware.KeyBySessionToken,
			FailOpen: true,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.App.Environment == "production"))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())

	authenticator := middleware.Authenticator(jwtManager)
	adminOnly := middleware.RequireAdmin

	router.Route("/v1", func(r chi.Router) {
		onboardingHandler.RegisterRoutes(r)
		planHandler.RegisterRoutes(r)
		authHandler.RegisterRoutes(r, authenticator)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)
	})

	go sweepExpiredSessions(ctx, sessionStore, authRepo, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

// sweepExpiredSessions drops onboarding sessions and refresh tokens that
// are past their TTL. Hourly is plenty: expiry is enforced on read, the
// sweep only reclaims rows.
func sweepExpiredSessions(
	ctx context.Context,
	sessions *onboarding.Repository,
	tokens auth.Repository,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := sessions.DeleteExpired(ctx, 24*time.Hour)
			if err != nil {
				logger.Error("session sweep failed", "error", err)
			} else if deleted > 0 {
				logger.Info("swept expired sessions", "deleted", deleted)
			}

			purged, err := tokens.DeleteExpired(ctx)
			if err != nil {
				logger.Error("token sweep failed", "error", err)
			} else if purged > 0 {
				logger.Info("swept expired refresh tokens", "deleted", purged)
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
