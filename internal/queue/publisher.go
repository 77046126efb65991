package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Sender publishes one JSON message to a named queue.
type Sender interface {
	Send(ctx context.Context, queue string, v any) error
}

// Publisher keeps one connection and channel open and reopens them when
// the broker drops them.  It is safe for concurrent use.
type Publisher struct {
	url    string
	queues []string
	logger echo.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a publisher for the given queues.  The connection is
// opened lazily on the first Send.
func NewPublisher(url string, logger echo.Logger, queues ...string) *Publisher {
	return &Publisher{url: url, queues: queues, logger: logger}
}

func (p *Publisher) ensureConnection() error {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.closeLocked()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	for _, q := range p.queues {
		// durable, not auto-deleted, not exclusive
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return fmt.Errorf("declare %s: %w", q, err)
		}
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Send marshals v and publishes it persistently to queue via the default
// exchange.
func (p *Publisher) Send(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureConnection(); err != nil {
		p.logger.Warnf("rabbitmq: %v", err)
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		p.closeLocked()
		return fmt.Errorf("publish %s: %w", queue, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
