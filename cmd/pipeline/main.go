package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lcampos/redditcurator/config"
	"github.com/lcampos/redditcurator/internal/clients"
	"github.com/lcampos/redditcurator/internal/logging"
	"github.com/lcampos/redditcurator/internal/pipeline"
	"github.com/lcampos/redditcurator/internal/sentiment"
	"github.com/lcampos/redditcurator/internal/storage"
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)
	logging.InitLogger()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("[Main] Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	os.Exit(run(cfg))
}

func run(cfg config.Config) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	source := clients.NewRedditClient(cfg.Reddit, cfg.Backoff)

	var aggregator *sentiment.Aggregator
	if cfg.Sentiment.Enabled {
		scorers, cleanup := buildScorers(cfg.Sentiment)
		defer cleanup()
		aggregator = sentiment.NewAggregator(scorers, cfg.Sentiment)
	}

	coordinator := pipeline.NewCoordinator(cfg, source, aggregator)
	closeSinks := wireSinks(ctx, coordinator, cfg)
	defer closeSinks()

	output, err := coordinator.Run(ctx)
	if err != nil {
		slog.Error("[Main] Run failed",
			slog.String("batch_id", output.Report.BatchID),
			slog.String("stage", string(output.Report.FailedStage)))
		return 1
	}

	slog.Info("[Main] Run finished",
		slog.String("batch_id", output.Report.BatchID),
		slog.String("state", string(output.Report.State)),
		slog.String("artifact", output.Report.ArtifactURI))
	return 0
}

func buildScorers(cfg config.SentimentConfig) ([]sentiment.Scorer, func()) {
	var scorers []sentiment.Scorer
	cleanup := func() {}

	for _, name := range cfg.Models {
		switch name {
		case "vader":
			scorers = append(scorers, sentiment.NewVaderScorer(cfg.PositiveThreshold, cfg.NegativeThreshold))
		case "transformer":
			transformer, err := sentiment.NewTransformerScorer(cfg.TransformerModelDir)
			if err != nil {
				// The lexicon model still covers the batch; the aggregator
				// reports the transformer as unavailable per record.
				slog.Warn("[Main] Transformer model unavailable, continuing without it",
					slog.String("error", err.Error()))
				scorers = append(scorers, sentiment.NewUnavailableScorer("transformer", err))
				continue
			}
			scorers = append(scorers, transformer)
			cleanup = transformer.Close
		default:
			slog.Warn("[Main] Unknown sentiment model, skipping", slog.String("model", name))
		}
	}

	return scorers, cleanup
}

func wireSinks(ctx context.Context, coordinator *pipeline.Coordinator, cfg config.Config) func() {
	var closers []func()
	if cfg.Storage.Bucket != "" {
		awsCfg, err := clients.NewAWSConfig(ctx, cfg.Storage.Region)
		if err != nil {
			slog.Error("[Main] AWS config unavailable, storage sinks disabled",
				slog.String("error", err.Error()))
		} else {
			coordinator.WithUploader(storage.NewS3Uploader(clients.NewS3Client(awsCfg), cfg.Storage.Bucket))
			if cfg.Storage.RunTable != "" {
				coordinator.WithCatalog(storage.NewRunCatalog(clients.NewDynamoDBClient(awsCfg), cfg.Storage.RunTable))
			}
		}
	}

	if cfg.Storage.KafkaBroker != "" {
		publisher, err := storage.NewKafkaPublisher(cfg.Storage.KafkaBroker, cfg.Storage.KafkaTopic)
		if err != nil {
			slog.Warn("[Main] Kafka sink disabled", slog.String("error", err.Error()))
		} else {
			coordinator.WithPublisher(publisher)
			closers = append(closers, publisher.Close)
		}
	}

	if cfg.Storage.ValkeyAddress != "" {
		seen, err := clients.NewValkeyClient(cfg.Storage.ValkeyAddress)
		if err != nil {
			slog.Warn("[Main] Valkey seen-filter disabled", slog.String("error", err.Error()))
		} else {
			coordinator.WithSeenFilter(seen)
			closers = append(closers, seen.Close)
		}
	}

	return func() {
		for _, closeSink := range closers {
			closeSink()
		}
	}
}
