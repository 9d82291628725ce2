package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"rsyaclean/internal/config"
)

// DeadLetterQueue names the queue that collects rejected messages
func DeadLetterQueue(cfg config.RabbitMQConfig) string {
	return cfg.QueueName + ".dead"
}

// SetupTopology declares the work exchange and queue, plus a dead-letter
// exchange and queue for messages rejected without requeue
func SetupTopology(c Client, cfg config.RabbitMQConfig) error {
	dlx := cfg.ExchangeName + ".dlx"
	dlq := DeadLetterQueue(cfg)

	if err := c.DeclareExchange(dlx, amqp.ExchangeFanout); err != nil {
		return err
	}
	if _, err := c.DeclareQueue(dlq, nil); err != nil {
		return err
	}
	if err := c.BindQueue(dlq, dlx, ""); err != nil {
		return err
	}

	if err := c.DeclareExchange(cfg.ExchangeName, amqp.ExchangeDirect); err != nil {
		return err
	}
	if _, err := c.DeclareQueue(cfg.QueueName, amqp.Table{"x-dead-letter-exchange": dlx}); err != nil {
		return err
	}
	return c.BindQueue(cfg.QueueName, cfg.ExchangeName, cfg.RoutingKey)
}
