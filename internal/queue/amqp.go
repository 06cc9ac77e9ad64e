package queue

import (
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/unclebandit/phishsim-backend/internal/logger"
)

// AMQPQueue publishes to and consumes from durable RabbitMQ queues named
// after the topic. Consumers ack on success and nack without requeue on
// failure, so a failed dispatch is never replayed automatically.
type AMQPQueue struct {
	conn *amqp.Connection

	mu       sync.Mutex
	ch       *amqp.Channel
	declared map[string]bool
}

var _ Queue = (*AMQPQueue)(nil)

func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, declared: map[string]bool{}}, nil
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ch.Close()
	return q.conn.Close()
}

func declare(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	return err
}

func (q *AMQPQueue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.declared[topic] {
		if err := declare(q.ch, topic); err != nil {
			return fmt.Errorf("declare queue %s: %w", topic, err)
		}
		q.declared[topic] = true
	}

	return q.ch.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		},
	)
}

// Subscribe registers handler on its own channel and processes deliveries
// one at a time in a background goroutine.
func (q *AMQPQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declare(ch, topic); err != nil {
		ch.Close()
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return err
	}

	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("register consumer: %w", err)
	}

	go func() {
		defer ch.Close()
		for d := range msgs {
			handleDelivery(d, handler)
		}
		logger.Warnf("consumer for %s stopped", topic)
	}()
	return nil
}

// acknowledger is the part of amqp.Delivery handleDelivery needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type delivery struct {
	ack  acknowledger
	body []byte
}

func handleDelivery(d amqp.Delivery, handler func(payload []byte) error) {
	process(delivery{ack: d, body: d.Body}, handler)
}

func process(d delivery, handler func(payload []byte) error) {
	if err := handler(d.body); err != nil {
		logger.Errorf("⚠️ job failed, dropping: %v", err)
		d.ack.Nack(false, false)
		return
	}
	d.ack.Ack(false)
}
