package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"neighborvendors_backend/internal/config"
)

// Publisher is the fire-and-forget notification side-channel. Implementations
// must never block the onboarding flow beyond a short timeout.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
	Close() error
}

// NoopPublisher is used when RABBIT_URL is not configured.
type NoopPublisher struct{}

func NewNoop() Publisher { return NoopPublisher{} }

func (NoopPublisher) Publish(ctx context.Context, key string, event any) error { return nil }
func (NoopPublisher) Close() error                                             { return nil }

// RabbitPublisher publishes events to a topic exchange.
type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewRabbit connects and declares the topic exchange.
func NewRabbit(cfg *config.Config) (Publisher, error) {
	if cfg.RabbitURL == "" {
		return NewNoop(), nil
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(cfg.RabbitExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &RabbitPublisher{conn: conn, ch: ch, exchange: cfg.RabbitExchange}, nil
}

func (p *RabbitPublisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	return nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, key string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// Bound the publish so a slow broker cannot stall onboarding.
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) <= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
	}

	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		MessageId:   uuid.NewString(),
		Timestamp:   time.Now(),
	})
}
