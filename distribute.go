package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"rotathumb/pkg/queue"
	"rotathumb/pkg/worker"
)

func newDistributeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distribute",
		Short: "Publish one RabbitMQ task per angle for frame workers to render",
		RunE:  runDistribute,
	}
}

func newFrameWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "frame-worker",
		Short: "Render frame tasks from RabbitMQ until interrupted",
		RunE:  runFrameWorker,
	}
}

func runDistribute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer mq.Close()

	jobID := uuid.New().String()
	n, err := worker.Distribute(cmd.Context(), mq, cfg.FrameQueue, jobID, cfg.Render)
	if err != nil {
		return fmt.Errorf("published %d of %d tasks: %w", n, len(cfg.Render.Angles), err)
	}

	log.Info().Str("job_id", jobID).Int("tasks", n).Str("queue", cfg.FrameQueue).Msg("frame tasks published")
	fmt.Fprintf(cmd.OutOrStdout(), "Job %s: %d frame tasks queued on %s\n", jobID, n, cfg.FrameQueue)
	return nil
}

func runFrameWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer mq.Close()

	ctx := cmd.Context()
	if err := worker.NewFrameWorker(mq, cfg.FrameQueue).Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("frame worker shutting down")
	return nil
}
