package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/flux/internal/auth"
	"github.com/Tyrowin/flux/internal/chat"
	"github.com/Tyrowin/flux/internal/config"
	"github.com/Tyrowin/flux/internal/logging"
	"github.com/Tyrowin/flux/internal/server"
	"github.com/Tyrowin/flux/internal/service"
	"github.com/Tyrowin/flux/internal/storage"
	"github.com/Tyrowin/flux/internal/telemetry"
	"github.com/Tyrowin/flux/internal/tokenstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("flux - run - fatal", logging.Err(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.ServiceName, cfg.Env)
	logger.Info("flux - startup - configuration loaded",
		slog.String("port", cfg.Port),
		slog.Bool("postgres", cfg.Database.IsPostgres()),
		slog.Bool("redis", cfg.Auth.RedisURL != ""),
		slog.Any("allowed_origins", cfg.AllowedOrigins),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer flush(logger, "telemetry", shutdownTracing, cfg.ShutdownTimeout)

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeQuietly(logger, "storage", store.Close)

	refresh, err := openTokenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly(logger, "token store", refresh.Close)

	tokens := auth.NewTokens(cfg.Auth.SecretKey, cfg.ServiceName, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	registry := chat.NewRegistry(logger)
	origins := server.NewOriginPolicy(cfg.AllowedOrigins, logger)

	users := service.NewUsers(store, tokens, refresh, logger)
	chatHandler := chat.NewHandler(chat.Deps{
		Identities:  users,
		Memberships: store,
		Messages:    store,
		Registry:    registry,
		CheckOrigin: origins.CheckOrigin,
	}, chat.HandlerConfig{
		Conn: chat.ConnConfig{
			MaxMessageSize: cfg.Chat.MaxMessageSize,
			SendBufferSize: cfg.Chat.SendBufferSize,
			PongWait:       cfg.Chat.PongWait,
			WriteWait:      cfg.Chat.WriteWait,
		},
		RateLimitBurst:    cfg.Chat.RateLimit.Burst,
		RateLimitInterval: cfg.Chat.RateLimit.RefillInterval,
	}, logger)

	srv := server.New(server.Deps{
		Users:    users,
		Posts:    service.NewPosts(store, logger),
		Channels: service.NewChannels(store, registry, logger),
		Chat:     chatHandler,
		Origins:  origins,
		Health:   store,
	}, cfg.ServiceName, logger)

	httpServer := server.CreateServer(cfg.Port, srv.Handler())
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.StartServer(httpServer, logger) }()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("flux - shutdown - signal received")
	}

	var errs []error
	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); err != nil {
		errs = append(errs, err)
	}
	if err := registry.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("flux - shutdown - live connections did not drain", logging.Err(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func openTokenStore(ctx context.Context, cfg config.Config) (tokenstore.Store, error) {
	if cfg.Auth.RedisURL == "" {
		return tokenstore.NewMemory(), nil
	}
	rdb, err := tokenstore.NewRedis(ctx, cfg.Auth.RedisURL, cfg.Database.PingTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}

func flush(logger *slog.Logger, name string, shutdown telemetry.ShutdownFunc, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("flux - shutdown - flush failed", slog.String("component", name), logging.Err(err))
	}
}

func closeQuietly(logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Warn("flux - shutdown - close failed", slog.String("component", name), logging.Err(err))
	}
}
