package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rsyaclean/internal/aws"
	"rsyaclean/internal/cache"
	"rsyaclean/internal/config"
	"rsyaclean/internal/database"
	"rsyaclean/internal/history"
	"rsyaclean/internal/metrics"
	"rsyaclean/internal/orchestrator"
	"rsyaclean/internal/queue"
	"rsyaclean/internal/rabbitmq"
	"rsyaclean/internal/scheduler"
	"rsyaclean/pkg/direct"
)

func main() {
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Logging)
	log.Info().Str("app", cfg.AppName).Str("env", cfg.Env).Msg("Starting scheduler")

	metrics.SetGlobal(metrics.New())

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

	if err := rabbitmq.SetupTopology(rabbit, cfg.RabbitMQ); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up queue topology")
	}

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

	var invoker orchestrator.Invoker
	if cfg.Engine.InvokeWorker && cfg.Invoke.URL != "" {
		invoker = orchestrator.NewHTTPInvoker(cfg.Invoke.URL, cfg.Invoke.Token, cfg.Engine.InvokeDeadline())
		log.Info().Str("url", cfg.Invoke.URL).Msg("Dispatched batches will also be invoked synchronously")
	}

	dispatcher := orchestrator.NewDispatcher(db, svc.Publisher, invoker, cfg.Engine)
	poller := orchestrator.NewPoller(svc, cfg.Engine)
	janitor := orchestrator.NewJanitor(db)

	s := scheduler.New()
	jobs := []struct {
		name string
		spec string
		job  scheduler.Job
	}{
		{"dispatch", cfg.Schedule.Dispatch, func(ctx context.Context) error {
			_, err := dispatcher.RunCycle(ctx)
			return err
		}},
		{"poll_reports", cfg.Schedule.PollReports, func(ctx context.Context) error {
			_, err := poller.RunOnce(ctx)
			return err
		}},
		{"reprocess_batches", cfg.Schedule.ReprocessBatch, func(ctx context.Context) error {
			_, err := dispatcher.ReprocessFailed(ctx)
			return err
		}},
		{"sweep_locks", cfg.Schedule.SweepLocks, func(ctx context.Context) error {
			_, err := janitor.SweepLocks(ctx)
			return err
		}},
	}
	for _, j := range jobs {
		if err := s.Register(j.name, j.spec, j.job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register scheduled job")
		}
	}

	s.Start()
	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Stop(shutdownCtx)

	log.Info().Msg("Scheduler exited")
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
