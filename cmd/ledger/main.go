package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ledger/internal/app/ledger"
	"ledger/internal/config"
	"ledger/internal/domain"
	accounts_http "ledger/internal/handler/http/accounts"
	"ledger/internal/infrastructure/database"
	kafka_infra "ledger/internal/infrastructure/kafka"
	"ledger/internal/outbox"
	"ledger/internal/repository/accounts_repo"
	"ledger/internal/repository/banks_repo"
	"ledger/internal/repository/memory"
	"ledger/internal/repository/outbox_repo"
	"ledger/internal/repository/postgres"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(parsed)
	return zapConfig.Build()
}

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger.Info("Ledger Service starting...", zap.String("store", cfg.StoreDriver))

	ctxMain, cancelMain := context.WithCancel(context.Background())
	defer cancelMain()

	var txManager domain.TxManager
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store := memory.NewStore()
		if cfg.SeedDemoData {
			store.SeedDemoData()
			appLogger.Info("In-memory store seeded with demo data.")
		}
		txManager = store
	default:
		db := mustOpenPostgres(ctxMain, &cfg, appLogger)
		defer func() {
			if err := db.Close(); err != nil {
				appLogger.Error("Error closing database connection", zap.Error(err))
			} else {
				appLogger.Info("Database connection closed.")
			}
		}()
		txManager = postgres.NewTxManager(
			db,
			accounts_repo.NewAccountRepository(),
			banks_repo.NewBankRepository(),
			outbox_repo.NewOutboxRepository(),
		)
	}

	opts := ledger.Options{AllowSelfTransfer: cfg.AllowSelfTransfer}
	if cfg.KafkaEnabled {
		opts.EventsTopic = cfg.KafkaTransferEventsTopic
	}
	ledgerService := ledger.NewLedgerService(
		txManager,
		opts,
		appLogger.With(zap.String("component", "LedgerService")),
	)
	appLogger.Info("Ledger Service initialized.", zap.Bool("allow_self_transfer", opts.AllowSelfTransfer))

	router := accounts_http.NewRouter(ledgerService, accounts_http.RouterConfig{
		AllowedOrigins: cfg.GetCORSAllowedOrigins(),
		RequestTimeout: cfg.HTTPRequestTimeout,
	}, appLogger.With(zap.String("component", "HTTPHandler")))

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var outboxProcessor *outbox.Processor
	outboxDone := make(chan struct{})
	if cfg.KafkaEnabled {
		kafkaBrokers := cfg.GetKafkaBrokers()
		ensureCtx, cancel := context.WithTimeout(ctxMain, 10*time.Second)
		err := kafka_infra.EnsureTopics(ensureCtx, kafkaBrokers, []string{cfg.KafkaTransferEventsTopic}, appLogger)
		cancel()
		if err != nil {
			appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
		}

		kafkaProducer := kafka_infra.NewProducer(kafkaBrokers, appLogger.With(zap.String("component", "KafkaProducer")))
		defer func() {
			if err := kafkaProducer.Close(); err != nil {
				appLogger.Error("Error closing Kafka producer", zap.Error(err))
			}
		}()

		outboxProcessor = outbox.NewProcessor(
			txManager,
			kafkaProducer,
			cfg.KafkaTransferEventsTopic,
			cfg.OutboxPollInterval,
			cfg.OutboxPollTimeout,
			cfg.OutboxBatchSize,
			appLogger.With(zap.String("component", "OutboxProcessor")),
		)
		go func() {
			defer close(outboxDone)
			outboxProcessor.Start(ctxMain)
		}()
	} else {
		close(outboxDone)
		appLogger.Info("Kafka disabled, transfer events are not published.")
	}

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	appLogger.Info("Shutting down application...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	cancelMain()
	select {
	case <-outboxDone:
	case <-time.After(5 * time.Second):
		appLogger.Warn("Outbox Processor did not stop cleanly within 5 seconds.")
	}

	appLogger.Info("Application gracefully shut down.")
}

func mustOpenPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) *sql.DB {
	logger.Info("Waiting for database to be available...")
	db, err := database.ConnectWithRetry(ctx, cfg.GetDBConnectionString(), cfg.DBConnectRetries, cfg.DBConnectRetryDelay, logger)
	if err != nil {
		logger.Fatal("Could not connect to database. Exiting.", zap.Error(err))
	}
	logger.Info("Successfully connected to PostgreSQL database!")

	logger.Info("Running database migrations...", zap.String("dir", cfg.MigrationsDir))
	if err := database.RunMigrations(cfg.MigrationsDir, cfg.GetDBMigrationConnectionString()); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	logger.Info("Database migrations completed successfully (or no new migrations).")
	return db
}
