package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/log-console/internal/api"
	"github.com/miradorstack/log-console/internal/cache"
	"github.com/miradorstack/log-console/internal/config"
	"github.com/miradorstack/log-console/internal/metrics"
	"github.com/miradorstack/log-console/internal/repo"
	"github.com/miradorstack/log-console/internal/session"
	"github.com/miradorstack/log-console/internal/utils"
)

func main() {
	var configPath string
	var envFile string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")
	flag.Parse()

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load env file", slog.String("path", envFile), slog.Any("error", err))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)
	logger.Info("starting log-console",
		slog.String("address", cfg.Server.Address),
		slog.String("backend", cfg.Backend.BaseURL))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheProvider := newCache(ctx, cfg.Cache, logger)
	defer cacheProvider.Close()

	client := repo.NewClient(repo.ClientOptions{
		BaseURL: cfg.Backend.BaseURL,
		Paths: repo.Paths{
			Logs:         cfg.Backend.LogsPath,
			Search:       cfg.Backend.SearchPath,
			Aggregations: cfg.Backend.AggregationsPath,
			Stats:        cfg.Backend.StatsPath,
			Analyze:      cfg.Backend.AnalyzePath,
			Feedback:     cfg.Backend.FeedbackPath,
			Login:        cfg.Backend.LoginPath,
			Health:       cfg.Backend.HealthPath,
		},
		Token:           cfg.Backend.Token,
		Timeout:         cfg.Backend.Timeout,
		Cache:           cacheProvider,
		AggregationsTTL: cfg.Cache.AggregationsTTL,
	})

	sessions := session.NewManager(client, session.Options{
		PageSize:            cfg.Dashboard.PageSize,
		AggregationInterval: cfg.Dashboard.AggregationInterval,
		DrillRadius:         cfg.Dashboard.DrillRadius,
		AnalysisTimeout:     cfg.Assistant.AnalysisTimeout,
		FeedbackTimeout:     cfg.Assistant.FeedbackTimeout,
		IdleTimeout:         cfg.Sessions.IdleTimeout,
		ReapInterval:        cfg.Sessions.ReapInterval,
		MaxSessions:         cfg.Sessions.MaxSessions,
		Logger:              logger,
	})
	go sessions.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(sessions, logger, cfg.Server.AllowedOrigins)
	server, err := api.NewServer(cfg.Server, handler.Routes())
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	var healthServer *api.HealthServer
	if cfg.Server.GRPCAddress != "" {
		healthServer, err = api.NewHealthServer(cfg.Server.GRPCAddress, client, cfg.Backend.HealthInterval, logger)
		if err != nil {
			logger.Error("failed to create gRPC health server", slog.Any("error", err))
			os.Exit(1)
		}
		go healthServer.Watch(ctx)
		go func() {
			logger.Info("gRPC health server listening", slog.String("address", healthServer.Address()))
			if serveErr := healthServer.Start(); serveErr != nil {
				logger.Error("gRPC server exited", slog.Any("error", serveErr))
				stop()
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("console API listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)
	if healthServer != nil {
		healthServer.Shutdown(shutdownCtx)
	}
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		logger.Warn("sessions did not drain", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("log-console stopped")
}

// newCache picks Valkey when an address is configured and reachable, falling back to
// the in-process cache. A disabled cache is a no-op.
func newCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if !cfg.Enabled {
		return cache.NoopProvider{}
	}
	if cfg.Addr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout+time.Second)
		defer cancel()
		provider, err := cache.NewValkeyProvider(dialCtx, cache.ValkeyConfig{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			KeyPrefix:    cfg.KeyPrefix,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			MaxRetries:   cfg.MaxRetries,
			TLS:          cfg.TLS,
		})
		if err == nil {
			logger.Info("aggregation cache using valkey", slog.String("addr", cfg.Addr))
			return provider
		}
		logger.Warn("valkey cache unavailable, using in-memory cache", slog.Any("error", err))
	}
	return cache.NewMemoryProvider(cfg.MaxEntries)
}
