package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/retail-authz/internal/app"
	"github.com/odyssey-erp/retail-authz/internal/auth"
	"github.com/odyssey-erp/retail-authz/internal/grants"
	"github.com/odyssey-erp/retail-authz/internal/menus"
	"github.com/odyssey-erp/retail-authz/internal/observability"
	"github.com/odyssey-erp/retail-authz/internal/platform/cache"
	"github.com/odyssey-erp/retail-authz/internal/platform/db"
	"github.com/odyssey-erp/retail-authz/internal/rbac"
	"github.com/odyssey-erp/retail-authz/internal/roles"
	"github.com/odyssey-erp/retail-authz/internal/shared"
	"github.com/odyssey-erp/retail-authz/internal/users"
	"github.com/odyssey-erp/retail-authz/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	publisher, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)

	sessions, err := auth.NewSessionManager(usersRepo, auth.NewRedisStore(redisClient, cfg.RedisPrefix), auth.Config{
		Secret:        []byte(cfg.JWTSecret),
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		RotateRefresh: cfg.RefreshRotation,
		Publisher:     publisher,
		Observer:      metrics,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("init session manager", slog.Any("error", err))
		os.Exit(1)
	}

	menuProvider := menus.NewProvider(menus.NewRepository(dbpool), cfg.MenuCacheTTL, nil)
	if _, err := menuProvider.Tree(ctx); err != nil {
		logger.Error("load menu tree", slog.Any("error", err))
		os.Exit(1)
	}

	grantsRepo := grants.NewRepository(dbpool)
	grantsService := grants.NewService(grantsRepo, menuProvider, grants.ServiceConfig{
		Idempotency: shared.NewIdempotencyStore(dbpool),
		Publisher:   publisher,
		Logger:      logger,
	})

	rbacService := rbac.NewService(menuProvider, grantsRepo, nil, metrics)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        auth.NewHandler(logger, sessions),
		AuthMiddleware:     auth.Middleware{Sessions: sessions},
		MenusHandler:       rbac.NewMenusHandler(logger, rbacService),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, grantsService, rbacMiddleware),
		RolesHandler:       roles.NewHandler(logger),
		UsersHandler:       users.NewHandler(logger, usersService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
