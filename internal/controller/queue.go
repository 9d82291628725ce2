package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"rsyaclean/internal/config"
	"rsyaclean/internal/orchestrator"
	"rsyaclean/internal/queue"
	"rsyaclean/internal/rabbitmq"
)

const reconnectDelay = 5 * time.Second

// QueueController consumes work messages and routes them to handlers
type QueueController interface {
	// StartProcessing declares the topology and starts the consumer
	StartProcessing(ctx context.Context) error

	// StopProcessing stops the consumer and waits for the in-flight message
	StopProcessing()
}

// acknowledger is the part of amqp.Delivery the controller settles with
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type queueController struct {
	rabbitClient rabbitmq.Client
	rabbitConfig config.RabbitMQConfig
	registry     orchestrator.HandlerRegistry
	consumerTag  string
	shutdown     chan struct{}
	wg           sync.WaitGroup
}

func NewQueueController(rabbitClient rabbitmq.Client, rabbitConfig config.RabbitMQConfig, registry orchestrator.HandlerRegistry) QueueController {
	return &queueController{
		rabbitClient: rabbitClient,
		rabbitConfig: rabbitConfig,
		registry:     registry,
		shutdown:     make(chan struct{}),
	}
}

func (c *queueController) StartProcessing(ctx context.Context) error {
	if len(c.registry.AvailableHandlers()) == 0 {
		return fmt.Errorf("no message handlers registered")
	}

	if err := rabbitmq.SetupTopology(c.rabbitClient, c.rabbitConfig); err != nil {
		return fmt.Errorf("failed to set up queue topology: %w", err)
	}

	c.consumerTag = fmt.Sprintf("rsya-consumer-%s", uuid.NewString())
	c.startConsumer(ctx, c.rabbitConfig.QueueName, c.consumerTag)

	log.Info().Int("handlers", len(c.registry.AvailableHandlers())).Msg("Queue processing started")
	return nil
}

func (c *queueController) StopProcessing() {
	close(c.shutdown)
	c.wg.Wait()
	log.Info().Msg("Queue processing stopped")
}

func (c *queueController) startConsumer(ctx context.Context, queueName, consumerTag string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		log.Info().
			Str("queue", queueName).
			Str("consumerTag", consumerTag).
			Msg("Starting consumer")

		for {
			select {
			case <-ctx.Done():
				log.Info().Str("consumerTag", consumerTag).Msg("Context cancelled, stopping consumer")
				return
			case <-c.shutdown:
				log.Info().Str("consumerTag", consumerTag).Msg("Shutdown signal received, stopping consumer")
				return
			default:
			}

			deliveries, err := c.rabbitClient.Consume(queueName, consumerTag)
			if err != nil {
				log.Error().
					Err(err).
					Str("queue", queueName).
					Msg("Failed to consume from queue")
				if !c.wait(ctx) {
					return
				}
				continue
			}

			if !c.drain(ctx, deliveries) {
				return
			}

			log.Warn().
				Str("queue", queueName).
				Str("consumerTag", consumerTag).
				Msg("Consumer channel closed, reconnecting...")
			if !c.wait(ctx) {
				return
			}
		}
	}()
}

// drain handles deliveries until the channel closes. It returns false when
// the consumer must stop.
func (c *queueController) drain(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-c.shutdown:
			return false
		case delivery, ok := <-deliveries:
			if !ok {
				return true
			}
			c.processDelivery(ctx, delivery.Body, delivery.Redelivered, &delivery)
		}
	}
}

func (c *queueController) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.shutdown:
		return false
	case <-time.After(reconnectDelay):
		return true
	}
}

// processDelivery settles a message: malformed or unroutable messages are
// dead-lettered, a failed handler gets one redelivery
func (c *queueController) processDelivery(ctx context.Context, body []byte, redelivered bool, ack acknowledger) {
	msg, err := queue.Decode(body)
	if err != nil {
		log.Error().Err(err).Msg("Rejecting malformed message")
		ack.Nack(false, false)
		return
	}

	logger := log.With().
		Str("messageId", msg.MessageID).
		Str("messageType", string(msg.Type)).
		Int64("projectId", msg.ProjectID).
		Logger()

	handler, exists := c.registry.Get(msg.Type)
	if !exists {
		logger.Error().Msg("No handler registered for message type, rejecting")
		ack.Nack(false, false)
		return
	}

	logger.Info().Str("handler", handler.Name()).Msg("Processing message")

	if err := handler.Handle(ctx, msg); err != nil {
		requeue := !redelivered
		logger.Error().Err(err).Bool("requeue", requeue).Msg("Message processing failed")
		ack.Nack(false, requeue)
		return
	}

	ack.Ack(false)
	logger.Info().Msg("Message processed")
}
