package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/devinsights/scm-normalizer/internal/app"
	"github.com/devinsights/scm-normalizer/internal/backfill"
	"github.com/devinsights/scm-normalizer/internal/config"
	"github.com/devinsights/scm-normalizer/internal/metrics"
	"github.com/devinsights/scm-normalizer/internal/store"
	"github.com/devinsights/scm-normalizer/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "scm-normalizer: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var backfillOnly bool
	flag.StringVar(&configPath, "config", "config/local.yaml", "path to YAML config file")
	flag.BoolVar(&backfillOnly, "backfill", false, "run the configured backfill once and exit")
	flag.Parse()

	configFile, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = configFile.Close()
	}()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.Server.LogLevel))
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "scm-normalizer",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
		ExporterEndpoint: cfg.Telemetry.OTELExporterEndpoint,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}()

	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sink, err := newRecordSink(rootCtx, cfg)
	if err != nil {
		return fmt.Errorf("build record store: %w", err)
	}
	defer func() {
		_ = sink.Close()
	}()

	runtime := app.NewRuntime(cfg, sink, metrics.New(), logger)

	if backfillOnly {
		return backfill.Run(rootCtx, cfg, sink, logger)
	}

	runtime.StartStoreProbe(rootCtx)
	defer runtime.StopStoreProbe()

	if cfg.Backfill.Enabled {
		go func() {
			runtime.SetBackfillHealth(true)
			if backfillErr := backfill.Run(rootCtx, cfg, sink, logger); backfillErr != nil {
				runtime.SetBackfillHealth(false)
				logger.Error("background backfill failed", zap.Error(backfillErr))
			}
		}()
	}

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           runtime.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.ListenAddr))
		if serveErr := server.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func newRecordSink(ctx context.Context, cfg *config.Config) (store.RecordSink, error) {
	switch cfg.Store.Backend {
	case "redis":
		var client redis.UniversalClient
		if cfg.Store.RedisMode == "sentinel" {
			client = redis.NewFailoverClient(&redis.FailoverOptions{
				MasterName:    cfg.Store.RedisMasterSet,
				SentinelAddrs: cfg.Store.RedisSentinelAddrs,
				Password:      cfg.Store.RedisPassword,
				DB:            cfg.Store.RedisDB,
			})
		} else {
			client = redis.NewClient(&redis.Options{
				Addr:     cfg.Store.RedisAddr,
				Password: cfg.Store.RedisPassword,
				DB:       cfg.Store.RedisDB,
			})
		}
		return store.NewRedisStore(client, store.RedisStoreConfig{Retention: cfg.Store.Retention}), nil
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Store.PostgresDSN)
	default:
		return store.NewMemoryStore(cfg.Store.Retention), nil
	}
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
