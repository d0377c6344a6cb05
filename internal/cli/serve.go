package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Anjos3/agente-seguimiento/internal/config"
	"github.com/Anjos3/agente-seguimiento/internal/httpapi"
	"github.com/Anjos3/agente-seguimiento/internal/kafka"
	"github.com/Anjos3/agente-seguimiento/internal/memstore"
	"github.com/Anjos3/agente-seguimiento/internal/postgres"
	"github.com/Anjos3/agente-seguimiento/internal/query"
	"github.com/Anjos3/agente-seguimiento/internal/reconcile"
	redisstore "github.com/Anjos3/agente-seguimiento/internal/redis"
	"github.com/Anjos3/agente-seguimiento/internal/store"
	"github.com/Anjos3/agente-seguimiento/internal/tasks"
	"github.com/Anjos3/agente-seguimiento/internal/timer"
	"github.com/Anjos3/agente-seguimiento/pkg/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the task tracker HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("store", "postgres", "task store backend: postgres | memory")
	serveCmd.Flags().String("postgres-dsn", "", "PostgreSQL connection string")
	serveCmd.Flags().String("redis-addr", "", "Redis address (host:port); empty disables the owner lease")
	serveCmd.Flags().String("kafka-brokers", "", "comma-separated Kafka broker addresses; empty disables event publishing")
	serveCmd.Flags().String("jwt-secret", "changeme", "JWT signing secret")
	serveCmd.Flags().String("reconcile-cron", "0 3 * * *", "cron expression for the nightly ledger sweep; empty disables it")

	bindFlag("http_port", serveCmd.Flags(), "http-port")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("store", serveCmd.Flags(), "store")
	bindFlag("postgres_dsn", serveCmd.Flags(), "postgres-dsn")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("jwt_secret", serveCmd.Flags(), "jwt-secret")
	bindFlag("reconcile_cron", serveCmd.Flags(), "reconcile-cron")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "agente")
	clock := timer.SystemClock()

	// ── task store ────────────────────────────────────────────────────────────
	var taskStore store.TaskStore
	switch cfg.Store {
	case "memory":
		taskStore = memstore.New()
		logger.Warn("using in-memory store; data is lost on restart")
	case "postgres", "":
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		taskStore = postgres.NewStore(pool)
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store)
	}

	// ── optional collaborators ────────────────────────────────────────────────
	var redisClient *redis.Client
	var locker timer.Locker
	if cfg.RedisAddr != "" {
		redisClient = redisstore.NewClient(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		locker = redisstore.NewOwnerLocker(redisClient)
	}

	var publisher timer.Publisher
	if cfg.KafkaBrokers != "" {
		p := kafka.NewPublisher(strings.Split(cfg.KafkaBrokers, ","), logger)
		defer func() { _ = p.Close() }()
		publisher = p
	}

	// ── services ──────────────────────────────────────────────────────────────
	engine := timer.NewEngine(taskStore, clock, publisher, locker, logger)
	taskSvc := tasks.NewService(taskStore, engine, clock, logger)
	queries := query.NewService(taskStore, clock)
	handler := httpapi.NewHandler(taskSvc, engine, queries, logger)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler.Router(cfg.JWTSecret),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── Prometheus metrics ────────────────────────────────────────────────────
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger)

	// ── nightly ledger sweep ──────────────────────────────────────────────────
	if cfg.ReconcileCron != "" {
		pgStore, ok := taskStore.(*postgres.Store)
		if !ok {
			logger.Warn("reconciler disabled: requires the postgres store")
		} else {
			rec := reconcile.NewReconciler(pgStore.Pool(), redisClient, clock, uuid.New().String(), logger)
			if err := rec.Start(runCtx, cfg.ReconcileCron); err != nil {
				return fmt.Errorf("reconciler: %w", err)
			}
			defer rec.Stop()
		}
	}

	go func() {
		logger.Info("HTTP server starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}
