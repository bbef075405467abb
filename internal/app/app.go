package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"go-news-cms/internal/config"
	"go-news-cms/internal/database"
	"go-news-cms/internal/event"
	"go-news-cms/internal/handler"
	"go-news-cms/internal/middleware"
	"go-news-cms/internal/repository"
	"go-news-cms/internal/router"
	"go-news-cms/internal/service"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.cleanup()
		}
	}()

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), database.Options{
		URL:       cfg.DatabaseURL,
		MaxConns:  cfg.DBMaxConns,
		MinConns:  cfg.DBMinConns,
		SlowQuery: cfg.DBSlowQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.onClose(db.Close)

	if err := db.EnsureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	roleRepo := repository.NewRoleRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	txManager := database.NewTxManager(pool)
	slog.Info("database ready")

	bgCtx, bgCancel := context.WithCancel(context.Background())
	a.onClose(bgCancel)

	bus := event.NewBus()
	a.onClose(bus.Close)
	auditService := service.NewAuditService(auditRepo)
	go auditService.Run(bgCtx, bus)

	if cfg.AMQPURL != "" {
		forwarder, err := event.NewAMQPForwarder(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to message broker: %w", err)
		}
		a.onClose(forwarder.Close)
		go forwarder.Run(bgCtx, bus)
		slog.Info("forwarding auth events", "exchange", cfg.AMQPExchange)
	}

	resolver := service.NewPermissionResolver(roleRepo)
	authService := service.NewAuthService(service.AuthDeps{
		Users:    userRepo,
		Sessions: sessionRepo,
		Roles:    resolver,
		Lockout:  service.NewLockoutPolicy(userRepo, cfg.LockoutThreshold, cfg.LockoutDuration),
		Hasher:   service.NewPasswordHasher(cfg.BcryptCost, cfg.HashConcurrency),
		Policy:   service.NewPasswordPolicy(cfg.Password),
		Tokens:   service.NewTokenIssuer(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		Tx:       txManager,
		Events:   bus,
	}, cfg.SessionTTL, cfg.DefaultRole)
	userService := service.NewUserService(userRepo, sessionRepo, resolver, txManager, bus)

	bootstrapCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = authService.Bootstrap(bootstrapCtx, cfg.BootstrapAdmin)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap admin account: %w", err)
	}

	limiters, err := a.newLimiters(cfg)
	if err != nil {
		return nil, err
	}

	appRouter := router.New(cfg, middleware.NewAuthMiddleware(authService), router.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		User:   handler.NewUserHandler(userService),
		Audit:  handler.NewAuditHandler(auditService),
		Docs:   handler.NewDocsHandler(cfg.OpenAPIPath),
		Health: handler.NewHealthHandler(db),
	}, limiters)

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	ok = true
	return a, nil
}

// newLimiters shares counters through Redis when REDIS_ADDR is set, so every
// replica sees the same window. Without it each process counts on its own.
func (a *App) newLimiters(cfg *config.Config) (router.Limiters, error) {
	if cfg.RedisAddr == "" {
		slog.Warn("REDIS_ADDR not set, login and register throttling is per process")
		return router.Limiters{
			Login: enabled(cfg.LoginRateLimit, func() middleware.WindowLimiter {
				return middleware.NewLocalWindow(cfg.LoginRateLimit, cfg.LoginRateWindow)
			}),
			Register: enabled(cfg.RegisterRateLimit, func() middleware.WindowLimiter {
				return middleware.NewLocalWindow(cfg.RegisterRateLimit, cfg.RegisterRateWindow)
			}),
		}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.onClose(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return router.Limiters{}, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("redis connected", "addr", cfg.RedisAddr)

	return router.Limiters{
		Login: enabled(cfg.LoginRateLimit, func() middleware.WindowLimiter {
			return middleware.NewRedisWindow(client, "ratelimit", cfg.LoginRateLimit, cfg.LoginRateWindow)
		}),
		Register: enabled(cfg.RegisterRateLimit, func() middleware.WindowLimiter {
			return middleware.NewRedisWindow(client, "ratelimit", cfg.RegisterRateLimit, cfg.RegisterRateWindow)
		}),
	}, nil
}

// enabled returns nil for a non-positive limit, which turns the throttle off.
func enabled(limit int, build func() middleware.WindowLimiter) middleware.WindowLimiter {
	if limit <= 0 {
		return nil
	}
	return build()
}

func (a *App) onClose(fn func()) {
	a.cleanupFuncs = append(a.cleanupFuncs, fn)
}

// cleanup runs in reverse registration order so the database closes last.
func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
