// Package queue provides the RabbitMQ transport for asynchronous
// conversions: a publisher used at admission and a worker that consumes
// tasks and drives them to a terminal job state.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rowforge/rowforge/internal/conversion"
)

// Publisher sends conversion tasks to a durable queue. Delivery and retry
// policy live here and in the broker, never in the interpreter.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewPublisher connects to the broker and declares the durable task queue.
func NewPublisher(url, queueName string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}

	return &Publisher{conn: conn, ch: ch, queue: queueName}, nil
}

var _ conversion.TaskQueue = (*Publisher)(nil)

// Publish enqueues one task as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, task conversion.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("queue unavailable: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
