package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"rotathumb/pkg/messaging"
)

// KafkaProducer publishes sweep jobs to a topic
type KafkaProducer struct {
	writer *kafka.Writer
}

// KafkaConsumer reads sweep jobs as part of a consumer group
type KafkaConsumer struct {
	reader *kafka.Reader
}

// NewKafkaProducer configures a writer; it connects lazily on first publish
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishJob sends a job keyed by its id
func (p *KafkaProducer) PublishJob(ctx context.Context, msg messaging.JobMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", msg.JobID, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.JobID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to send job %s to kafka: %w", msg.JobID, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// NewKafkaConsumer configures a group reader for topic
func NewKafkaConsumer(brokers []string, topic, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  groupID,
			Topic:    topic,
			MinBytes: 10e3, // 10KB
			MaxBytes: 10e6, // 10MB
		}),
	}
}

// ConsumeJobs calls handler for every job until ctx is cancelled. Offsets
// are committed after the handler returns, whether it failed or not;
// failures are recorded in the job store by the handler.
func (c *KafkaConsumer) ConsumeJobs(ctx context.Context, handler func(context.Context, messaging.JobMessage) error) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			log.Error().Err(err).Msg("error reading message")
			continue
		}

		var job messaging.JobMessage
		if err := json.Unmarshal(m.Value, &job); err != nil {
			log.Error().Err(err).Str("key", string(m.Key)).Int64("offset", m.Offset).Msg("skipping undecodable message")
		} else if err := handler(ctx, job); err != nil {
			log.Error().Err(err).Str("job_id", job.JobID).Msg("job failed")
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Error().Err(err).Int64("offset", m.Offset).Msg("failed to commit message")
		}
	}
}

// Close closes the reader
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
