package queue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"rsyaclean/internal/config"
	"rsyaclean/internal/rabbitmq"
)

type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

type rabbitPublisher struct {
	client rabbitmq.Client
	config config.RabbitMQConfig
}

func NewPublisher(client rabbitmq.Client, cfg config.RabbitMQConfig) Publisher {
	return &rabbitPublisher{client: client, config: cfg}
}

func (p *rabbitPublisher) Publish(ctx context.Context, m Message) error {
	body, headers, err := Encode(m)
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, p.config.ExchangeName, p.config.RoutingKey, body, headers); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	log.Debug().
		Interface("messageId", headers[HeaderMessageID]).
		Str("type", string(m.Type)).
		Int64("projectId", m.ProjectID).
		Msg("Message published")
	return nil
}
