package main

import (
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tesserahq/tessera/internal/events"
	"github.com/tesserahq/tessera/internal/handlers"
	infracache "github.com/tesserahq/tessera/internal/infrastructure/cache"
	"github.com/tesserahq/tessera/internal/infrastructure/config"
	"github.com/tesserahq/tessera/internal/infrastructure/database"
	"github.com/tesserahq/tessera/internal/infrastructure/metrics"
	"github.com/tesserahq/tessera/internal/repositories/postgres"
	"github.com/tesserahq/tessera/internal/services/access"
	"github.com/tesserahq/tessera/internal/services/filtering"
	"github.com/tesserahq/tessera/internal/services/registry"
	"github.com/tesserahq/tessera/internal/services/relations"
	"github.com/tesserahq/tessera/internal/services/values"
	"github.com/tesserahq/tessera/pkg/cache"
	"github.com/tesserahq/tessera/pkg/cache/memorycache"
	"github.com/tesserahq/tessera/pkg/cache/rediscache"
)

const defaultEnv = "dev"

func main() {
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	logger, err := zap.NewProduction()
	if env == defaultEnv {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := config.InitConfig(env); err != nil {
		logger.Fatal("failed to initialize config", zap.Error(err))
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pg.Close()
	logger.Info("connected to database",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("database", cfg.Database.Database))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schemaRepo := postgres.NewPostgresSchemaRepository(pg.DB)
	rowRepo := postgres.NewPostgresRowRepository(pg.DB)
	tenantRepo := postgres.NewPostgresTenantRepository(pg.DB)

	reg := registry.New(schemaRepo, os.Getenv("TENANT_SCOPE"))
	if err := reg.Load(ctx); err != nil {
		logger.Fatal("failed to load entity definitions", zap.Error(err))
	}
	version, _ := reg.Version()
	logger.Info("entity definitions loaded", zap.String("version", version))

	dispatcher := events.NewDispatcher(cfg.Events.BufferSize, logger)
	defer dispatcher.Close()

	cascade := access.NewCascade(tenantRepo)

	var (
		decisionCache cache.Cache
		resolver      *access.Resolver
	)
	if cfg.Cache.Enabled {
		switch cfg.Cache.Backend {
		case "redis":
			// Decisions round-trip through gob in redis.
			gob.Register(access.Decision{})
			decisionCache, err = rediscache.New(ctx, &rediscache.Config{
				Addr: cfg.Cache.RedisAddr,
				DB:   cfg.Cache.RedisDB,
			})
			if err != nil {
				logger.Fatal("failed to connect to redis", zap.Error(err))
			}
		default:
			decisionCache = memorycache.New(&memorycache.Config{
				MaxEntries: cfg.Cache.MaxEntries,
			})
		}
		defer decisionCache.Close()

		tokenManager := infracache.NewTokenManager(pg.DB, cfg.Database.ConnectionString(), 10*time.Second)
		if err := tokenManager.Start(ctx); err != nil {
			logger.Fatal("failed to start grants-change token manager", zap.Error(err))
		}
		defer tokenManager.Stop()

		ttl := time.Duration(cfg.Cache.TTLMinutes) * time.Minute
		resolver = access.NewResolverWithCache(rowRepo, cascade, decisionCache, tokenManager, ttl)
		logger.Info("decision cache enabled", zap.String("backend", cfg.Cache.Backend))
	} else {
		resolver = access.NewResolver(rowRepo, cascade)
	}

	graph := relations.NewGraph(reg, rowRepo, dispatcher)
	valueService := values.NewService(rowRepo, dispatcher)
	compiler := filtering.NewCompiler()
	collector := metrics.NewCollector(decisionCache)

	handler := handlers.New(reg, valueService, graph, resolver, compiler, rowRepo, dispatcher, collector, logger)

	apiServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", collector.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pg.HealthCheck(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 2)
	go func() {
		logger.Info("api server listening", zap.String("addr", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("api server error: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-serverErrors:
		logger.Error("server failed", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown failed", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
