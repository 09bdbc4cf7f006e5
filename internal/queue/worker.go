package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rowforge/rowforge/internal/conversion"
)

// Worker consumes conversion tasks and runs them to a terminal state. A
// dequeued task is owned by exactly one worker for its lifetime; the job's
// status transitions happen only through that worker.
type Worker struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	service  *conversion.Service
	prefetch int
}

// NewWorker connects to the broker and prepares a bounded-prefetch consumer
// channel on the durable task queue.
func NewWorker(url, queueName string, prefetch int, service *conversion.Service) (*Worker, error) {
	if prefetch <= 0 {
		prefetch = 1
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("worker dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("worker channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("worker queue declare: %w", err)
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("worker qos: %w", err)
	}

	return &Worker{conn: conn, ch: ch, queue: queueName, service: service, prefetch: prefetch}, nil
}

// Run consumes tasks until the context is cancelled or the broker closes the
// channel. Each delivery is acked once its job reaches a terminal state. An
// undecodable payload is dropped without requeue; a task that fails on a
// store error is requeued once before being dropped.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.ch.Consume(w.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("worker consume: %w", err)
	}

	slog.Info("worker started", "queue", w.queue, "prefetch", w.prefetch)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped")
			return ctx.Err()

		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("worker delivery channel closed")
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var task conversion.Task
	if err := json.Unmarshal(d.Body, &task); err != nil {
		slog.Error("undecodable task dropped", "error", err)
		d.Nack(false, false)
		return
	}

	// A processing error here means the service could not even load the job
	// or claim it, usually a transient store failure. The delivery goes back
	// on the queue for one more attempt; a redelivered task that fails again
	// is dropped so it cannot loop forever.
	if err := w.service.ProcessTask(ctx, task); err != nil {
		if d.Redelivered {
			slog.Error("task failed after redelivery, dropping", "job_id", task.JobID, "error", err)
			d.Nack(false, false)
			return
		}
		slog.Warn("task failed, requeueing", "job_id", task.JobID, "error", err)
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

// Close releases the channel and connection.
func (w *Worker) Close() error {
	if err := w.ch.Close(); err != nil {
		w.conn.Close()
		return err
	}
	return w.conn.Close()
}
