package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"rotathumb/pkg/messaging"
	"rotathumb/pkg/render"
)

// ErrNotConfirmed is returned when the broker nacks a published task
var ErrNotConfirmed = errors.New("publish not confirmed")

// RabbitMQ represents a RabbitMQ connection and channel
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	confirms chan amqp.Confirmation
	queues   map[string]amqp.Queue
	mutex    sync.Mutex // Serialises publish and confirm
}

// NewRabbitMQ creates a new RabbitMQ connection
func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	// Enable publish confirmations
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publish confirmations: %w", err)
	}

	return &RabbitMQ{
		conn:     conn,
		channel:  channel,
		confirms: channel.NotifyPublish(make(chan amqp.Confirmation, 1)),
		queues:   make(map[string]amqp.Queue),
	}, nil
}

// DeclareQueue declares a durable queue
func (r *RabbitMQ) DeclareQueue(name string) error {
	queue, err := r.channel.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	r.mutex.Lock()
	r.queues[name] = queue
	r.mutex.Unlock()
	return nil
}

// PublishTask publishes a frame task and waits for the broker to confirm it
func (r *RabbitMQ) PublishTask(ctx context.Context, queueName string, task messaging.FrameTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = r.channel.PublishWithContext(
		ctx,
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case confirmed := <-r.confirms:
		if !confirmed.Ack {
			return ErrNotConfirmed
		}
	case <-ctx.Done():
		return fmt.Errorf("waiting for confirmation: %w", ctx.Err())
	}
	return nil
}

// ConsumeTasks registers handler for the queue and processes deliveries in
// the background until the channel closes. Failures that would recur on
// every attempt are rejected, other handler failures are requeued.
func (r *RabbitMQ) ConsumeTasks(ctx context.Context, queueName string, handler func(context.Context, messaging.FrameTask) error) error {
	err := r.channel.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := r.channel.Consume(
		queueName, // queue
		"",        // consumer
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for msg := range msgs {
			if err := handleDelivery(ctx, msg.Body, handler); err != nil {
				if !retryable(err) {
					log.Error().Err(err).Str("queue", queueName).Msg("rejecting message")
					msg.Reject(false)
					continue
				}
				log.Error().Err(err).Str("queue", queueName).Msg("task failed, requeueing")
				msg.Nack(false, true)
				continue
			}
			msg.Ack(false)
		}
	}()

	return nil
}

var errBadMessage = errors.New("undecodable message")

// retryable reports whether a failed task may succeed if delivered again
func retryable(err error) bool {
	return !errors.Is(err, errBadMessage) &&
		!errors.Is(err, render.ErrInvalidJob) &&
		!errors.Is(err, fs.ErrNotExist)
}

func handleDelivery(ctx context.Context, body []byte, handler func(context.Context, messaging.FrameTask) error) error {
	var task messaging.FrameTask
	if err := json.Unmarshal(body, &task); err != nil {
		return fmt.Errorf("%w: %v", errBadMessage, err)
	}
	return handler(ctx, task)
}

// Close closes the RabbitMQ connection and channel
func (r *RabbitMQ) Close() {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}
