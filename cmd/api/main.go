package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ledgerboard/api/internal/app"
	"ledgerboard/api/internal/authpw"
	"ledgerboard/api/internal/avatar"
	"ledgerboard/api/internal/cache"
	"ledgerboard/api/internal/config"
	"ledgerboard/api/internal/events"
	"ledgerboard/api/internal/logging"
	"ledgerboard/api/internal/search"
	"ledgerboard/api/internal/session"
	"ledgerboard/api/internal/store"
	"ledgerboard/api/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(os.Stderr, "error", "console")
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, "ledgerboard-api", cfg.OTELEndpoint)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	// "api rollback [steps]" reverts migrations and exits.
	if len(os.Args) > 1 && os.Args[1] == "rollback" {
		steps := 1
		if len(os.Args) > 2 {
			if steps, err = strconv.Atoi(os.Args[2]); err != nil || steps <= 0 {
				logger.Fatal().Str("steps", os.Args[2]).Msg("rollback steps must be a positive integer")
			}
		}
		reverted, err := store.RollbackMigrations(ctx, db, cfg.MigrationsDir, steps, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("rollback failed")
		}
		logger.Info().Strs("versions", reverted).Msg("rollback complete")
		return
	}

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}
	logger.Info().Int("applied", len(applied)).Msg("migrations up to date")

	dataStore := store.NewPostgresStore(db)
	deps := app.Dependencies{
		Store:       dataStore,
		Events:      events.NewBus(),
		Credentials: authpw.NewService(dataStore, 0),
		Logger:      logger,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := session.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using postgres for refresh tokens")
		} else {
			deps.Sessions = session.NewRedisStore(client)
			deps.Cache = cache.NewRedisCache(client, cfg.ProfileCacheTTL)
			defer deps.Sessions.Close()
		}
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	deps.Search = search.NewService(meiliClient, search.NewPgFTS(db), logger)
	go deps.Search.ReindexAll(ctx)

	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		avatars, err := avatar.New(ctx, avatar.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("avatar storage unavailable")
		} else {
			deps.Avatars = avatars
		}
	}

	service := app.New(cfg, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Event streams stay open, so there is no write timeout.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("ledgerboard api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	waitForSignal(logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

func waitForSignal(logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")
}
