package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"rotathumb/pkg/cache"
	"rotathumb/pkg/config"
	"rotathumb/pkg/logging"
	"rotathumb/pkg/queue"
	"rotathumb/pkg/worker"
)

func main() {
	cfg, err := config.FromFileAndEnv(os.Getenv("ROTATHUMB_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("WORKER: Failed to load config")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogPretty); err != nil {
		log.Fatal().Err(err).Msg("WORKER: Invalid log level")
	}

	redisClient, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("WORKER: Could not connect to Redis")
	}
	defer redisClient.Close()
	log.Info().Msg("WORKER: Connected to Redis")

	processor := worker.NewProcessor(
		cache.NewRedisJobStore(redisClient, cfg.JobTTL),
		cache.NewRedisCache(redisClient, cfg.CacheTTL, "sweep"),
	)

	consumer := queue.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Error().Err(err).Msg("WORKER: Failed to close Kafka reader")
		}
	}()
	log.Info().Str("topic", cfg.KafkaTopic).Str("group", cfg.KafkaGroupID).Msg("WORKER: Kafka reader configured")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("WORKER: Starting message consumption loop")
	if err := consumer.ConsumeJobs(ctx, processor.Process); err != nil {
		log.Error().Err(err).Msg("WORKER: Consumer stopped")
	}
	log.Info().Msg("WORKER: Shut down complete")
}
