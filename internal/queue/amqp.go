package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

const retryHeader = "x-retry-count"

// AMQPQueue maps each topic to a durable RabbitMQ queue on the default
// exchange. Handlers run with manual acknowledgement.
type AMQPQueue struct {
	conn       *amqp.Connection
	pub        *amqp.Channel
	pubMu      sync.Mutex
	consumers  []*amqp.Channel
	declared   map[string]bool
	MaxRetries int
	// MaxLength bounds a topic's queue; the broker drops the oldest
	// messages beyond it. Set before the first Publish or Subscribe.
	MaxLength map[string]int
	Logger    *slog.Logger
}

func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &AMQPQueue{
		conn:       conn,
		pub:        ch,
		declared:   make(map[string]bool),
		MaxRetries: 3,
		Logger:     slog.Default(),
	}, nil
}

func (q *AMQPQueue) declare(ch *amqp.Channel, topic string) error {
	args := queueArgs(q.MaxLength[topic])
	_, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,  // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	return nil
}

func queueArgs(maxLength int) amqp.Table {
	if maxLength <= 0 {
		return nil
	}
	return amqp.Table{"x-max-length": int32(maxLength), "x-overflow": "drop-head"}
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retryCount int) error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	if !q.declared[topic] {
		if err := q.declare(q.pub, topic); err != nil {
			return err
		}
		q.declared[topic] = true
	}
	return q.pub.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(retryCount)},
		Body:         body,
	})
}

// Subscribe starts a consumer goroutine. A failed message is republished
// with an incremented retry header until MaxRetries, then rejected.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := q.declare(ch, topic); err != nil {
		ch.Close()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
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
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.pubMu.Lock()
	q.consumers = append(q.consumers, ch)
	q.pubMu.Unlock()

	go func() {
		for d := range msgs {
			q.deliver(topic, d, handler)
		}
	}()
	return nil
}

func (q *AMQPQueue) deliver(topic string, d amqp.Delivery, handler Handler) {
	err := handler(d.Body)
	if err == nil {
		d.Ack(false)
		return
	}

	retryCount := retryCountOf(d.Headers)
	if retryCount < q.MaxRetries {
		q.Logger.Warn("message failed, requeueing", "topic", topic, "attempt", retryCount+1, "error", err)
		if perr := q.publish(topic, d.Body, retryCount+1); perr != nil {
			q.Logger.Error("requeue failed", "topic", topic, "error", perr)
			d.Nack(false, true)
			return
		}
		d.Ack(false)
		return
	}
	q.Logger.Error("message permanently failed", "topic", topic, "attempts", retryCount+1, "error", err)
	d.Nack(false, false)
}

// retryCountOf reads the retry header. The broker hands integers back as
// int32 or int64 depending on the publisher.
func retryCountOf(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	q.pubMu.Lock()
	for _, ch := range q.consumers {
		ch.Close()
	}
	q.pub.Close()
	q.pubMu.Unlock()
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
