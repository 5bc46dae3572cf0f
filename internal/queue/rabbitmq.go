// Package queue brokers job dispatch over RabbitMQ priority queues.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ncobase/jobstream/pkg/logger"
)

// maxBrokerPriority is the highest priority level the queue is declared with.
const maxBrokerPriority = 10

// Message is the wire payload dispatched to workers. The job row is the
// source of truth; the message only carries what a worker needs to claim it.
type Message struct {
	JobID    string `json:"job_id"`
	Type     string `json:"type"`
	Priority int    `json:"priority"`
}

// Publisher enqueues job messages. Satisfied by RabbitMQ and by test fakes.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// RabbitMQ publishes to and consumes from a durable priority queue.
type RabbitMQ struct {
	conn      *amqp.Connection
	queueName string
	mu        sync.Mutex
}

// NewRabbitMQ creates a broker bound to the named queue.
func NewRabbitMQ(conn *amqp.Connection, queueName string) *RabbitMQ {
	return &RabbitMQ{conn: conn, queueName: queueName}
}

// declareQueue ensures the durable priority queue exists.
func (q *RabbitMQ) declareQueue(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		q.queueName, // queue name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		amqp.Table{"x-max-priority": int32(maxBrokerPriority)},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return nil
}

// clampBrokerPriority saturates a domain priority into the broker's range.
func clampBrokerPriority(priority int) uint8 {
	if priority < 0 {
		return 0
	}
	if priority > maxBrokerPriority {
		return maxBrokerPriority
	}
	return uint8(priority)
}

// Publish enqueues a message with publisher confirms so a broker-side drop
// surfaces as an error instead of silent loss.
func (q *RabbitMQ) Publish(ctx context.Context, msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.conn == nil || q.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is not available")
	}

	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := q.declareQueue(ch); err != nil {
		return err
	}
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable confirm mode: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	err = ch.PublishWithContext(ctx,
		"",          // default exchange
		q.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Priority:     clampBrokerPriority(msg.Priority),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case confirm := <-confirms:
		if !confirm.Ack {
			return fmt.Errorf("message was not confirmed by broker")
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Consume delivers queued messages to the handler one at a time. The message
// is acked only after the handler returns nil; a handler error requeues it.
// Consume blocks until the context is cancelled or the delivery channel
// closes.
func (q *RabbitMQ) Consume(ctx context.Context, handler func(context.Context, *Message) error) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := q.declareQueue(ch); err != nil {
		return err
	}
	// One unacked message at a time so priorities keep meaning under load.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx,
		q.queueName, // queue
		"",          // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			msg, err := decodeMessage(delivery.Body)
			if err != nil {
				// Undecodable messages can never succeed; drop them.
				logger.StdLogger().Errorf(ctx, "dropping malformed message: %v", err)
				_ = delivery.Nack(false, false)
				continue
			}
			if err := handler(ctx, msg); err != nil {
				logger.StdLogger().Warnf(ctx, "requeueing job %s after handler error: %v", msg.JobID, err)
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

func decodeMessage(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}
	if msg.JobID == "" {
		return nil, fmt.Errorf("message missing job_id")
	}
	return &msg, nil
}
