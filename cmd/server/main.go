package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"safeflag/internal/api"
	"safeflag/internal/config"
	"safeflag/internal/dto/req"
	"safeflag/internal/metrics"
	"safeflag/internal/model"
	"safeflag/internal/repository"
	"safeflag/internal/risk"
	"safeflag/internal/service"
	"safeflag/pkg/logger"

	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := req.RegisterValidators(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}

	// Infrastructure
	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db, err := initDB(cfg.Database)
	if err != nil {
		return err
	}

	// Repositories
	flagRepo := repository.NewFlagRepository(db)
	envRepo := repository.NewEnvironmentRepository(db)
	statusRepo := repository.NewStatusRepository(db)
	evalRepo := repository.NewEvaluationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	sdkRepo := repository.NewSDKKeyRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Services
	gateObserver := metrics.NewPrometheusGateObserver()
	assessor, err := risk.New(cfg.Risk, gateObserver)
	if err != nil {
		return fmt.Errorf("risk assessor: %w", err)
	}

	readCache := service.NewReadCacheStore(cfg.Cache.Driver, rdb, cfg.Cache.Prefix)
	ledger := service.NewAuditLedger(auditRepo, readCache, cfg.Cache.TTL)
	telemetry := service.NewTelemetryStore(flagRepo, evalRepo, readCache, cfg.Cache.TTL, cfg.Telemetry.BlastRadiusWindow)
	registry := service.NewFlagRegistry(db, flagRepo, envRepo, statusRepo, outboxRepo, ledger)
	gatekeeper := service.NewGatekeeper(db, flagRepo, envRepo, statusRepo, outboxRepo, ledger, telemetry, assessor, gateObserver)
	authSvc := service.NewAuthService(userRepo, rdb, cfg.Auth.SigningKey, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	sdkSvc := service.NewSDKKeyService(sdkRepo, envRepo)

	if err := service.Seed(ctx, envRepo, userRepo, authSvc, cfg.Server.SeedDemoUsers); err != nil {
		return err
	}

	hub := service.NewHub(metrics.NewPrometheusObserver(), cfg.Stream.HeartbeatInterval, cfg.Stream.HubBufferSize)

	checks := map[string]api.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	// State distribution: etcd when enabled, otherwise in-process revisions.
	var (
		watcher    *service.StateWatcher
		publisher  service.StatePublisher
		reconciler *service.Reconciler
	)
	if cfg.Etcd.Enabled {
		etcdCli, err := initEtcd(cfg.Etcd)
		if err != nil {
			return err
		}
		defer etcdCli.Close()

		stateRepo := repository.NewStateRepository(etcdCli)
		watcher = service.NewStateWatcher(stateRepo, hub, cfg.Stream.HubBufferSize)
		publisher = stateRepo
		reconciler = service.NewReconciler(etcdCli, stateRepo, flagRepo, cfg.Workers.ReconcilerInterval)
		checks["etcd"] = stateRepo.Health
	} else {
		watcher = service.NewStateWatcher(nil, hub, cfg.Stream.HubBufferSize)
		publisher = service.NewLocalStatePublisher(watcher)
		logger.Warn("etcd disabled, publishing flag states in-process only")
	}
	outboxWorker := service.NewOutboxWorker(outboxRepo, publisher, cfg.Workers.OutboxInterval)

	// Background routines
	go func() {
		logger.Info("starting hub")
		hub.Run(ctx)
	}()
	if cfg.Etcd.Enabled {
		go func() {
			logger.Info("starting state watcher")
			watcher.Run(ctx)
		}()
		go func() {
			logger.Info("starting reconciler")
			reconciler.Run(ctx)
		}()
	}
	go func() {
		logger.Info("starting outbox worker")
		outboxWorker.Run(ctx)
	}()

	// HTTP
	r := api.RegisterRoutes(api.Handlers{
		Flags:  api.NewFlagHandler(registry, gatekeeper, telemetry, ledger),
		Auth:   api.NewAuthHandler(authSvc),
		SDK:    api.NewSDKKeyHandler(sdkSvc),
		Stream: api.NewStreamHandler(watcher, hub),
		Health: api.NewHealthHandler(checks),
	}, api.RouterOptions{
		Tokens:            authSvc,
		SDKKeys:           sdkRepo,
		Redis:             rdb,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment),
			zap.String("db", cfg.Database.Driver),
			zap.Bool("etcd", cfg.Etcd.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited properly")
	return nil
}

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func initEtcd(cfg config.EtcdConfig) (*clientv3.Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return client, nil
}

func dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func initDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}
