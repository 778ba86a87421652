package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/oudcrm-automation/internal/config"
	"github.com/unclebandit/oudcrm-automation/internal/lock"
	"github.com/unclebandit/oudcrm-automation/internal/logger"
	"github.com/unclebandit/oudcrm-automation/internal/queue"
	"github.com/unclebandit/oudcrm-automation/internal/ratelimit"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Driver = "memory"
	return cfg
}

func TestNew_MemoryStorage(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), logger.New("error", &bytes.Buffer{}))
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &queue.InMemoryQueue{}, a.Queue)
	assert.IsType(t, &lock.Local{}, a.Scheduler.Locker)
	assert.IsType(t, ratelimit.Unlimited{}, a.Executor.Limiter)

	campaigns, total, err := a.Campaigns.ListCampaigns(context.Background(), 0, 10, "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, campaigns)
	assert.Equal(t, len(campaigns), total)

	report, err := a.Scheduler.RunScheduledCampaigns(context.Background(), a.Today())
	require.NoError(t, err)
	assert.NotNil(t, report)
}

func TestNew_ExecutionEventsOnlyWhenEnabled(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), logger.New("error", &bytes.Buffer{}))
	require.NoError(t, err)
	assert.Nil(t, a.Executor.Events)
	require.NoError(t, a.Close())

	cfg := memoryConfig(t)
	cfg.Events.Enabled = true
	a, err = New(context.Background(), cfg, logger.New("error", &bytes.Buffer{}))
	require.NoError(t, err)
	defer a.Close()
	assert.Same(t, a.Queue, a.Executor.Events)
	assert.Equal(t, cfg.Scheduler.Location().String(), a.CampaignService.Location.String())
}

func TestNew_RedisBackedLockAndLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig(t)
	cfg.Redis.Addr = mr.Addr()
	cfg.RateLimits = map[string]int{"generic_a": 5}

	a, err := New(context.Background(), cfg, logger.New("error", &bytes.Buffer{}))
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &lock.Redis{}, a.Scheduler.Locker)
	assert.IsType(t, &ratelimit.Redis{}, a.Executor.Limiter)
}

func TestNew_UnknownStorageDriver(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Storage.Driver = "mongo"
	_, err := New(context.Background(), cfg, logger.New("error", &bytes.Buffer{}))
	assert.ErrorContains(t, err, "mongo")
}
