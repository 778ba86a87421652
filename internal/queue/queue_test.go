package queue

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue() *InMemoryQueue {
	q := NewInMemoryQueue()
	q.Backoff = time.Millisecond
	q.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	return q
}

func TestInMemoryQueue_DeliversJSON(t *testing.T) {
	q := newTestQueue()
	got := make(chan RunRequest, 1)

	require.NoError(t, q.Subscribe(TopicCampaignRuns, func(payload []byte) error {
		var req RunRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return err
		}
		got <- req
		return nil
	}))
	require.NoError(t, q.Publish(TopicCampaignRuns, RunRequest{CampaignID: 7, Date: "2024-03-21"}))

	select {
	case req := <-got:
		assert.Equal(t, RunRequest{CampaignID: 7, Date: "2024-03-21"}, req)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	require.NoError(t, q.Close())
}

func TestInMemoryQueue_RetriesThenGivesUp(t *testing.T) {
	q := newTestQueue()
	q.MaxRetries = 2
	var calls atomic.Int32

	require.NoError(t, q.Subscribe("t", func([]byte) error {
		calls.Add(1)
		return errors.New("boom")
	}))
	require.NoError(t, q.Publish("t", "x"))
	require.NoError(t, q.Close())

	assert.Equal(t, int32(3), calls.Load(), "first attempt plus two retries")
}

func TestInMemoryQueue_RecoversAfterTransientFailure(t *testing.T) {
	q := newTestQueue()
	var calls atomic.Int32

	require.NoError(t, q.Subscribe("t", func([]byte) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}))
	require.NoError(t, q.Publish("t", 1))
	require.NoError(t, q.Close())
	assert.Equal(t, int32(2), calls.Load())
}

func TestInMemoryQueue_NoSubscribersDrops(t *testing.T) {
	q := newTestQueue()
	assert.NoError(t, q.Publish(TopicExecutionEvents, map[string]string{"a": "b"}))
}

func TestInMemoryQueue_UnencodablePayload(t *testing.T) {
	q := newTestQueue()
	assert.Error(t, q.Publish("t", make(chan int)))
}

func TestRetryCountOf(t *testing.T) {
	assert.Equal(t, 0, retryCountOf(nil))
	assert.Equal(t, 2, retryCountOf(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 3, retryCountOf(amqp.Table{retryHeader: int64(3)}))
	assert.Equal(t, 0, retryCountOf(amqp.Table{retryHeader: "x"}))
}

func TestQueueArgs(t *testing.T) {
	assert.Nil(t, queueArgs(0))
	assert.Equal(t, amqp.Table{"x-max-length": int32(500), "x-overflow": "drop-head"}, queueArgs(500))
}
