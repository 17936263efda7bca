// Command server runs the gen-art HTTP API.
//
//	@title			Gen-Art Backend API
//	@version		1.0
//	@description	Generates watermarked character images, lists the gallery and records newsletter sign-ups.
//	@BasePath		/api
package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-genart-backend/internal/config"
	httpapi "github.com/tbourn/go-genart-backend/internal/http"
	"github.com/tbourn/go-genart-backend/internal/imagegen"
	"github.com/tbourn/go-genart-backend/internal/jobs"
	"github.com/tbourn/go-genart-backend/internal/keypool"
	"github.com/tbourn/go-genart-backend/internal/observability"
	"github.com/tbourn/go-genart-backend/internal/repo"
	"github.com/tbourn/go-genart-backend/internal/storage"
	"github.com/tbourn/go-genart-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, os.Stdout)
	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("failed to open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init asset store")
	}
	if obj, ok := store.(*storage.ObjectStore); ok {
		if err := obj.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure bucket failed")
		}
	}

	redisClient := newRedisClient(ctx, cfg.Redis, logger)
	pool := newKeyPool(cfg, redisClient)
	if pool.Len() == 0 {
		logger.Warn().Msg("no generation API keys configured; generate-image will return 503")
	}
	logger.Info().Strs("keys", pool.Names()).Int("count", pool.Len()).Msg("generation key pool loaded")

	genLogger := logger.With().Str("component", "imagegen").Logger()
	client := imagegen.NewClient(imagegen.Options{
		BaseURL:          cfg.Generation.BaseURL,
		Model:            cfg.Generation.Model,
		SampleCount:      cfg.Generation.SampleCount,
		PersonGeneration: cfg.Generation.PersonGeneration,
		AspectRatio:      cfg.Generation.AspectRatio,
		RequestTimeout:   cfg.Generation.RequestTimeout,
		RPS:              cfg.Generation.UpstreamRPS,
		Logger:           &genLogger,
	})
	retrier := imagegen.NewRetrier(pool, client)
	retrier.MaxAttempts = cfg.Generation.MaxAttempts
	retrier.ShortDelay = cfg.Generation.ShortDelay
	retrier.LongDelay = cfg.Generation.LongDelay
	retrier.Logger = &genLogger

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, retrier, store, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	janitor := jobs.NewJanitor(db, cfg.Jobs.WorkDir, cfg.Jobs.ScratchTTL, logger.With().Str("component", "janitor").Logger())
	if err := janitor.Start(cfg.Jobs.JanitorSchedule); err != nil {
		logger.Error().Err(err).Msg("janitor start failed")
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", appVersion).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, srv, janitor, db, redisClient, shutdownOTel)
}

// newRedisClient connects to Redis when an address is configured. A failed
// ping falls back to the in-process cursor.
func newRedisClient(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unavailable; using in-process key rotation")
		_ = client.Close()
		return nil
	}
	return client
}

func newKeyPool(cfg config.Config, redisClient *redis.Client) *keypool.Pool {
	var opts []keypool.Option
	if redisClient != nil {
		opts = append(opts, keypool.WithCursor(keypool.NewRedisCursor(redisClient, cfg.Redis.CursorKey)))
	}
	if cfg.Generation.ShuffleKeys {
		opts = append(opts, keypool.WithShuffle(rand.New(rand.NewSource(time.Now().UnixNano()))))
	}
	return keypool.FromSecrets(cfg.Generation.APIKeys, opts...)
}

func waitForShutdown(
	logger zerolog.Logger,
	srv *http.Server,
	janitor *jobs.Janitor,
	db *gorm.DB,
	redisClient *redis.Client,
	shutdownOTel func(context.Context) error,
) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	select {
	case <-janitor.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("janitor still running at shutdown")
	}

	if err := repo.Close(db); err != nil {
		logger.Error().Err(err).Msg("database close error")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown error")
	}

	logger.Info().Msg("server exited cleanly")
}
