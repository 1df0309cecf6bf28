package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"docqa/internal/app"
	"docqa/internal/config"
	"docqa/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("application exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			log.Warn("failed to close dependencies", "error", err)
		}
	}()

	opts := app.Options{
		DB:         deps.DB,
		Blobs:      deps.Blobs,
		Generator:  deps.Generator,
		Recognizer: deps.Recognizer,
	}
	if deps.NSQProducer != nil {
		opts.Publisher = deps.NSQProducer
	}

	application, err := app.New(cfg, opts)
	if err != nil {
		return err
	}

	if cfg.EnableIngestWorker {
		nsqCfg := nsq.NewConfig()
		nsqCfg.MaxInFlight = cfg.IngestConcurrency
		nsqCfg.MaxAttempts = cfg.IngestMaxAttempts
		consumer, err := nsq.NewConsumer(config.TopicIngestDocument, config.ChannelIngestWorker, nsqCfg)
		if err != nil {
			return err
		}
		consumer.AddConcurrentHandlers(application.IngestConsumer, cfg.IngestConcurrency)
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			log.Error("failed to connect to NSQLookupd", "error", err)
		} else {
			log.Info("NSQ ingest consumer connected", "topic", config.TopicIngestDocument)
		}
		defer consumer.Stop()
	}

	if !cfg.EnableAPI {
		log.Info("api disabled, running ingest worker only")
		<-ctx.Done()
		return nil
	}
	return application.Run(ctx)
}
