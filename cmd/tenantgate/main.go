package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tenantgate/pkg/api"
	"github.com/platinummonkey/tenantgate/pkg/config"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	configFile  = flag.String("config", "", "Path to a YAML configuration file")
	migrateOnly = flag.Bool("migrate-only", false, "Apply database migrations and sync the permission catalog, then exit")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tenantgate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}

	level, err := observability.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := observability.NewLoggerWithFormat(level, observability.Format(cfg.Logging.Format), os.Stdout).
		WithField("service", "tenantgate").
		WithField("version", version)
	observability.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Tracing.Insecure,
	}, logger)
	if err != nil {
		return err
	}
	if tp != nil {
		shutdown.Register("tracing", tp.Shutdown)
	}

	conn, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.ConnectTimeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		return err
	}
	shutdown.Register("database", func(context.Context) error { return conn.Close() })

	if cfg.Database.MigrateOnStart || *migrateOnly {
		if err := postgres.Migrate(ctx, conn.DB()); err != nil {
			return err
		}
		schema, err := postgres.MigrationVersion(ctx, conn.DB())
		if err != nil {
			return err
		}
		logger.WithField("schema_version", schema).Info("database schema is up to date")
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = postgres.NewRedisClient(ctx, postgres.RedisConfig{URL: cfg.Redis.URL})
		if err != nil {
			return err
		}
		shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	server, err := api.NewServer(api.Dependencies{
		Config:  cfg,
		DB:      conn.DB(),
		Redis:   rdb,
		Logger:  logger,
		Metrics: metrics,
		Version: version,
	})
	if err != nil {
		return err
	}
	if err := server.SyncCatalog(ctx); err != nil {
		return err
	}
	if *migrateOnly {
		logger.Info("migrations and permission catalog applied")
		return shutdown.Shutdown(context.Background())
	}

	conn.StartStatsRoutine(ctx, 15*time.Second, func(stats sql.DBStats) {
		defer observability.RecoverPanic(logger, "db stats")
		metrics.RecordDBStats(stats)
	})
	server.StartBackground(ctx)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	shutdown.Register("http", httpServer.Shutdown)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, observability.MetricsHandler(registry))
		metricsServer = &http.Server{
			Addr:              ":" + cfg.Metrics.Port,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		shutdown.Register("metrics", metricsServer.Shutdown)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Starting tenantgate on %s", httpServer.Addr)
		return listen(httpServer)
	})
	if metricsServer != nil {
		g.Go(func() error {
			logger.Infof("Serving metrics on %s%s", metricsServer.Addr, cfg.Metrics.Path)
			return listen(metricsServer)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		return shutdown.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("tenantgate stopped")
	return nil
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
	}
	return nil
}
