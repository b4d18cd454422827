package rabbitmq

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"worker-pipeline/config"
	"worker-pipeline/dto"
)

// StepPublisher publishes pipeline step messages. Delayed publishes go to the
// wait queue with a per-message TTL; expiry dead-letters them back onto the
// step queue.
type StepPublisher struct {
	ch *amqp.Channel
}

func NewStepPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) (*StepPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := declareTopology(ch, PipelineStepSpec, cfg.Kind); err != nil {
		return nil, err
	}
	if err := declareWaitQueue(ch); err != nil {
		return nil, err
	}
	return &StepPublisher{ch: ch}, nil
}

func (p *StepPublisher) Publish(ctx context.Context, msg dto.StepMessage) error {
	return p.publish(ctx, msg, PipelineRoutingKey, 0)
}

func (p *StepPublisher) PublishDelayed(ctx context.Context, msg dto.StepMessage, delay time.Duration) error {
	if delay <= 0 {
		return p.Publish(ctx, msg)
	}
	return p.publish(ctx, msg, PipelineWaitKey, delay)
}

func (p *StepPublisher) publish(ctx context.Context, msg dto.StepMessage, routingKey string, ttl time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if ttl > 0 {
		pub.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}
	return p.ch.PublishWithContext(ctx, PipelineExchange, routingKey, false, false, pub)
}

func (p *StepPublisher) Close() error {
	return p.ch.Close()
}
