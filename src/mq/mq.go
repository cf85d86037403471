// Package mq carries storage-write notifications between the splitter and
// the analyzer worker over RabbitMQ.
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"tweetlens/src/analyzer"
)

// Config holds RabbitMQ connection configuration.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Queue    string
}

// Validate checks the connection configuration before dialing.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("empty host")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("invalid port")
	}
	if c.Queue == "" {
		return errors.New("empty queue name")
	}
	return nil
}

// Queue wraps one connection, channel and declared queue.
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	config  Config
}

// Dial connects to RabbitMQ and declares the durable notification queue.
func Dial(config Config) (*Queue, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mq config: %w", err)
	}
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/", config.Username, config.Password, config.Host, config.Port)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		config.Queue, // name
		true,         // durable
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// Fair dispatch: one unacked chunk per worker at a time.
	err = ch.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &Queue{
		conn:    conn,
		channel: ch,
		queue:   q,
		config:  config,
	}, nil
}

// Close closes the channel and connection.
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// PublishEvent sends one storage-write notification as persistent JSON.
func (q *Queue) PublishEvent(ctx context.Context, ev analyzer.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = q.channel.PublishWithContext(ctx,
		"",             // default exchange
		q.config.Queue, // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Consume registers a manual-ack consumer and returns the delivery channel.
func (q *Queue) Consume() (<-chan amqp.Delivery, error) {
	msgs, err := q.channel.Consume(
		q.queue.Name, // queue
		"",           // consumer
		false,        // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register a consumer: %w", err)
	}
	return msgs, nil
}

// Info returns queue name, message count and consumer count.
func (q *Queue) Info() (map[string]interface{}, error) {
	queue, err := q.channel.QueueInspect(q.config.Queue)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect queue: %w", err)
	}
	return map[string]interface{}{
		"name":      queue.Name,
		"messages":  queue.Messages,
		"consumers": queue.Consumers,
	}, nil
}
