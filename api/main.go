package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"rotathumb/pkg/cache"
	"rotathumb/pkg/config"
	"rotathumb/pkg/logging"
	"rotathumb/pkg/queue"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.FromFileAndEnv(os.Getenv("ROTATHUMB_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogPretty); err != nil {
		log.Fatal().Err(err).Msg("Invalid log level")
	}

	redisClient, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not connect to Redis")
	}
	defer redisClient.Close()
	log.Info().Str("url", cfg.RedisURL).Msg("Connected to Redis")

	// The writer connects on first publish
	producer := queue.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer func() {
		if err := producer.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Kafka writer")
		}
	}()
	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("Kafka writer configured")

	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("Cannot create upload directory")
	}

	srv := &server{
		cfg:       cfg,
		store:     cache.NewRedisJobStore(redisClient, cfg.JobTTL),
		publisher: producer,
	}
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: newRouter(srv),
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("API server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down API server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown")
	}
}
