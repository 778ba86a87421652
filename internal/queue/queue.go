package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Topics.
const (
	TopicCampaignRuns    = "campaign_runs"
	TopicExecutionEvents = "campaign_execution_events"
)

// RunRequest asks a worker to run one campaign for a date (YYYY-MM-DD).
type RunRequest struct {
	CampaignID int    `json:"campaign_id"`
	Date       string `json:"date"`
}

// Handler receives the JSON body of a message. A non-nil error requests redelivery.
type Handler func(payload []byte) error

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue delivers to subscribers in-process and retries failed
// handlers with linear backoff.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	wg         sync.WaitGroup
	MaxRetries int
	Backoff    time.Duration
	Logger     *slog.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
		Logger:     slog.Default(),
	}
}

// job wraps a message payload with retry info
type job struct {
	topic      string
	body       []byte
	retryCount int
}

// Publish sends a message to all subscribers. Publishing to a topic nobody
// listens on is not an error; the message is dropped.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}

	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(handler, job{topic: topic, body: body})
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler Handler, j job) {
	defer q.wg.Done()
	for {
		err := handler(j.body)
		if err == nil {
			return
		}

		j.retryCount++
		if j.retryCount > q.MaxRetries {
			q.Logger.Error("job permanently failed", "topic", j.topic, "attempts", j.retryCount, "error", err)
			return
		}
		q.Logger.Warn("job failed, retrying", "topic", j.topic, "attempt", j.retryCount, "error", err)
		time.Sleep(time.Duration(j.retryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight jobs.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
