package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/duckmesh/tabletalk/internal/api"
	"github.com/duckmesh/tabletalk/internal/audit"
	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/catalog/sqlcatalog"
	"github.com/duckmesh/tabletalk/internal/config"
	"github.com/duckmesh/tabletalk/internal/ingest"
	"github.com/duckmesh/tabletalk/internal/llm"
	"github.com/duckmesh/tabletalk/internal/nl2sql"
	"github.com/duckmesh/tabletalk/internal/observability"
	"github.com/duckmesh/tabletalk/internal/pipeline"
	"github.com/duckmesh/tabletalk/internal/query"
	duckdbengine "github.com/duckmesh/tabletalk/internal/query/duckdb"
	"github.com/duckmesh/tabletalk/internal/query/sqlexec"
	"github.com/duckmesh/tabletalk/internal/session"
	"github.com/duckmesh/tabletalk/internal/storage"
	s3store "github.com/duckmesh/tabletalk/internal/storage/s3"
	"github.com/duckmesh/tabletalk/internal/warehouse"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", slog.Any("error", err))
	}

	cfg, err := config.LoadFromEnv("tabletalk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx := context.Background()

	db, err := warehouse.Open(ctx, warehouse.Config{
		Driver:          cfg.Warehouse.Driver,
		DSN:             cfg.Warehouse.DSN,
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
		ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
		ConnectTimeout:  cfg.Warehouse.ConnectTimeout,
	})
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	retry := warehouse.RetryPolicy{
		Attempts: cfg.Warehouse.RetryAttempts,
		MinWait:  cfg.Warehouse.RetryMinWait,
		MaxWait:  cfg.Warehouse.RetryMaxWait,
	}
	catalogRepo := sqlcatalog.NewRepository(db, retry)
	schemaCache := catalog.NewCache(catalogRepo, cfg.Pipeline.SchemaCacheTTL)

	var (
		objectStore storage.ObjectStore
		bucketCheck api.ReadinessCheck
	)
	if cfg.ObjectStore.Enabled {
		bucket, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		objectStore, bucketCheck = bucket, bucket.HealthCheck
	}

	var executor query.Executor = sqlexec.New(db, retry, cfg.Warehouse.QueryTimeout)
	if cfg.Pipeline.QueryEngine == "snapshot" {
		executor = duckdbengine.NewEngine(objectStore)
	}

	completer, err := llm.New(ctx, llm.Config{
		Provider:    cfg.AI.Provider,
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize llm provider", slog.Any("error", err))
		os.Exit(1)
	}

	generator := nl2sql.New(completer, nl2sql.Config{
		MaxRetries: cfg.AI.SQLMaxRetries,
		RetryBase:  cfg.AI.SQLRetryBase,
		RetryStep:  cfg.AI.SQLRetryStep,
	}, logger)

	graph, err := pipeline.New(ctx, pipeline.Deps{
		Catalog:   schemaCache,
		Completer: completer,
		Generator: generator,
		Executor:  executor,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to compile pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	readiness := []api.ReadinessCheck{catalogRepo.HealthCheck, api.CheckObjectStoreConfig(cfg), bucketCheck}

	var sessions session.Store
	switch cfg.Session.Backend {
	case "redis":
		client, err := session.NewRedisClient(ctx, session.RedisConfig{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		if err != nil {
			logger.Error("failed to connect session store", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		redisStore := session.NewRedisStore(client, cfg.Session.TTL)
		readiness = append(readiness, redisStore.HealthCheck)
		sessions = redisStore
	default:
		sessions, err = session.NewMemoryStore(cfg.Session.MaxSessions)
		if err != nil {
			logger.Error("failed to initialize session store", slog.Any("error", err))
			os.Exit(1)
		}
	}

	ingestService := ingest.NewService(
		ingest.NewLoader(db, cfg.Upload.ChunkSize),
		schemaCache,
		objectStore,
		ingest.Config{MaxRows: cfg.Upload.MaxRows, Archive: cfg.Upload.Archive && objectStore != nil},
		logger,
	)

	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
		Pipeline:          graph,
		Sessions:          sessions,
		Ingest:            ingestService,
	}
	if cfg.Audit.Enabled {
		deps.Audit = audit.NewLog(db)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("warehouse", cfg.Warehouse.Driver),
			slog.String("query_engine", cfg.Pipeline.QueryEngine),
			slog.String("llm", completer.Name()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
