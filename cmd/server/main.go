package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "readito/metadataservice/internal/api/http"
	"readito/metadataservice/internal/app"
	"readito/metadataservice/internal/catalog"
	"readito/metadataservice/internal/covers"
	"readito/metadataservice/internal/library"
	"readito/metadataservice/internal/metadata"
	"readito/metadataservice/internal/metrics"
	"readito/metadataservice/internal/providers/anilist"
	"readito/metadataservice/internal/providers/jikan"
	"readito/metadataservice/internal/providers/kitsu"
	"readito/metadataservice/internal/providers/loc"
	"readito/metadataservice/internal/providers/openlibrary"
	"readito/metadataservice/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "metadata-service")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "metadata-service"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("dbPath", cfg.DBPath),
		slog.String("coversDir", cfg.CoversDir),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
	)

	store, err := catalog.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open catalog store failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	metadataService := metadata.NewService(buildProviders(cfg), cfg.RequestTimeout, buildServiceOptions(cfg, logger)...)

	fetcher := covers.NewFetcher(covers.Config{
		Dir:       cfg.CoversDir,
		UserAgent: cfg.UserAgent,
		Client:    &http.Client{Timeout: 15 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	})
	libraryService := library.NewService(store, metadataService, fetcher, logger)

	handler := apihttp.NewServer(metadataService,
		apihttp.WithLogger(logger),
		apihttp.WithLibrary(libraryService),
		apihttp.WithCatalog(store),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("metadata service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("metadata service stopped")
}

func buildProviders(cfg app.Config) []metadata.Provider {
	newClient := func(timeout time.Duration) *http.Client {
		return &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	var providers []metadata.Provider
	if cfg.OpenLibraryEnabled {
		providers = append(providers, openlibrary.NewProvider(openlibrary.Config{
			Endpoint:  cfg.OpenLibraryEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    newClient(10 * time.Second),
		}))
	}
	if cfg.LOCEnabled {
		providers = append(providers, loc.NewProvider(loc.Config{
			Endpoint:  cfg.LOCEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    newClient(8 * time.Second),
		}))
	}
	if cfg.AniListEnabled {
		providers = append(providers, anilist.NewProvider(anilist.Config{
			Endpoint:  cfg.AniListEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    newClient(8 * time.Second),
		}))
	}
	if cfg.JikanEnabled {
		providers = append(providers, jikan.NewProvider(jikan.Config{
			Endpoint:  cfg.JikanEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    newClient(8 * time.Second),
		}))
	}
	if cfg.KitsuEnabled {
		providers = append(providers, kitsu.NewProvider(kitsu.Config{
			Endpoint:  cfg.KitsuEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    newClient(8 * time.Second),
		}))
	}
	return providers
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildServiceOptions(cfg app.Config, logger *slog.Logger) []metadata.ServiceOption {
	var opts []metadata.ServiceOption

	if cfg.CacheDisabled {
		opts = append(opts, metadata.WithCacheDisabled(true))
		return opts
	}

	if cfg.CacheTTL > 0 {
		opts = append(opts, metadata.WithCacheTTL(cfg.CacheTTL))
	}

	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
			return opts
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
			return opts
		}
		logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
		opts = append(opts, metadata.WithRedisCache(metadata.NewRedisCacheBackend(redisClient)))
	}

	return opts
}
