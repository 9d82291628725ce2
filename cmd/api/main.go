package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rsyaclean/internal/aws"
	"rsyaclean/internal/cache"
	"rsyaclean/internal/config"
	"rsyaclean/internal/controller"
	"rsyaclean/internal/database"
	"rsyaclean/internal/history"
	"rsyaclean/internal/metrics"
	"rsyaclean/internal/orchestrator"
	"rsyaclean/internal/queue"
	"rsyaclean/internal/rabbitmq"
	"rsyaclean/internal/server"
	"rsyaclean/pkg/direct"
)

func main() {
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Logging)
	log.Info().Str("app", cfg.AppName).Str("env", cfg.Env).Msg("Starting worker API")

	m := metrics.New()
	metrics.SetGlobal(m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate schema")
	}

	historyStore, err := history.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer historyStore.Close(context.Background())

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize redis cache connection")
	}
	defer redisCache.Close()

	archive, err := aws.NewReportArchive(cfg.AWS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize report archive")
	}

	rabbit, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RabbitMQ client")
	}
	defer rabbit.Close()

	directClient := direct.New(directOptions(cfg.Direct))

	svc := orchestrator.Services{
		Store:      db,
		Reports:    directClient,
		Exclusions: directClient,
		History:    historyStore,
		Cache:      cache.NewReportCache(redisCache, time.Duration(cfg.Redis.ReportTTL)*time.Second),
		Archive:    archive,
		Publisher:  queue.NewPublisher(rabbit, cfg.RabbitMQ),
	}

	worker := orchestrator.NewWorker(svc, cfg.Engine)
	dispatcher := orchestrator.NewDispatcher(db, svc.Publisher, nil, cfg.Engine)
	poller := orchestrator.NewPoller(svc, cfg.Engine)
	analyzer := orchestrator.NewAnalyzer(svc, cfg.Engine)

	registry := orchestrator.NewHandlerRegistry(
		orchestrator.NewBatchHandler(worker),
		orchestrator.NewPlacementsHandler(worker),
	)

	qc := controller.NewQueueController(rabbit, cfg.RabbitMQ, registry)
	if err := qc.StartProcessing(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start queue processing")
	}

	sc := controller.NewServer(db, historyStore, redisCache, rabbit, archive)
	ec := controller.NewEngineController(worker, dispatcher, poller, analyzer)
	srv := server.New(*cfg, sc, ec, m.Registry())

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	qc.StopProcessing()

	log.Info().Msg("Worker API exited")
}

func directOptions(cfg config.DirectConfig) direct.Options {
	return direct.Options{
		BaseURL:           cfg.BaseURL,
		Timeout:           time.Duration(cfg.RequestTimeout) * time.Second,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Language:          cfg.Language,
		MaxAttempts:       cfg.MaxRetries,
		BackoffInitial:    time.Duration(cfg.BackoffInitial) * time.Second,
		BackoffMax:        time.Duration(cfg.BackoffMax) * time.Second,
	}
}

func setupLogger(config config.LoggingConfig) {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	switch config.Format {
	case "json":
		// JSON is the default for zerolog
	case "console", "combined":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	log.Logger = log.With().Timestamp().Logger()
}
