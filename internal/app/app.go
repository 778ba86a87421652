// Package app wires the configured storage, providers and infrastructure
// into the services shared by the server and the worker.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/oudcrm-automation/internal/channel"
	"github.com/unclebandit/oudcrm-automation/internal/config"
	"github.com/unclebandit/oudcrm-automation/internal/db"
	"github.com/unclebandit/oudcrm-automation/internal/lock"
	"github.com/unclebandit/oudcrm-automation/internal/provider"
	"github.com/unclebandit/oudcrm-automation/internal/queue"
	"github.com/unclebandit/oudcrm-automation/internal/ratelimit"
	"github.com/unclebandit/oudcrm-automation/internal/repository"
	"github.com/unclebandit/oudcrm-automation/internal/service"
	"github.com/unclebandit/oudcrm-automation/internal/trigger"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB    *sql.DB
	Redis *redis.Client
	Queue queue.Queue

	Campaigns  repository.CampaignRepositoryInterface
	Customers  repository.CustomerRepositoryInterface
	Executions repository.ExecutionRepositoryInterface
	Providers  *provider.Registry

	Executor        *service.Executor
	Scheduler       *service.Scheduler
	Tracker         *service.DeliveryTracker
	CampaignService *service.CampaignService

	closers []func() error
}

// New connects to every configured backend. Redis and RabbitMQ are
// optional; without them locking, rate limiting and the queue stay
// in-process.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Redis.Enabled() {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, a.Redis.Close)
	}

	if cfg.RabbitMQ.Enabled() {
		q, err := queue.DialAMQP(cfg.RabbitMQ.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		q.Logger = logger
		q.MaxLength = map[string]int{queue.TopicExecutionEvents: cfg.Events.MaxQueued}
		a.Queue = q
	} else {
		q := queue.NewInMemoryQueue()
		q.Logger = logger
		a.Queue = q
	}
	a.closers = append(a.closers, a.Queue.Close)

	retry := provider.RetryPolicy{
		Timeout:    cfg.Retry.Timeout(),
		MaxRetries: cfg.Retry.MaxRetries,
		Backoff:    cfg.Retry.Backoff(),
	}
	registry, err := provider.NewRegistryFromConfig(ctx, cfg.Providers, retry, &http.Client{Timeout: cfg.Retry.Timeout() + 5*time.Second})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Providers = registry
	if len(registry.Channels()) == 0 {
		logger.Warn("no providers enabled; every dispatch will fail validation")
	}

	a.wireServices()
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	switch a.Config.Storage.Driver {
	case "memory":
		store := repository.NewMemoryStore()
		a.Campaigns, a.Customers, a.Executions = store.Campaigns, store.Customers, store.Executions
		a.Logger.Warn("using in-memory storage with demo data")
		return db.Seed(ctx, store.Campaigns, store.Customers, time.Now())
	case "postgres":
		conn, err := db.Open(ctx, a.Config.Database.DSN())
		if err != nil {
			return err
		}
		a.DB = conn
		a.closers = append(a.closers, conn.Close)
		if err := db.Migrate(ctx, conn); err != nil {
			return err
		}
		a.Campaigns = &repository.CampaignRepository{DB: conn}
		a.Customers = &repository.CustomerRepository{DB: conn}
		a.Executions = &repository.ExecutionRepository{DB: conn}
		return nil
	}
	return fmt.Errorf("unknown storage driver %q", a.Config.Storage.Driver)
}

func (a *App) wireServices() {
	cfg := a.Config
	triggers := trigger.Options{WinBackDays: cfg.Triggers.WinBackDays, AnniversaryYears: cfg.Triggers.AnniversaryYears}
	selector := channel.DefaultSelector()

	a.Executor = &service.Executor{
		Campaigns:  a.Campaigns,
		Executions: a.Executions,
		Providers:  a.Providers,
		Selector:   selector,
		Limiter:    a.limiter(),
		Workers:    cfg.Scheduler.Workers,
		Logger:     a.Logger,
	}
	if cfg.Events.Enabled {
		a.Executor.Events = a.Queue
	}
	a.Scheduler = &service.Scheduler{
		Campaigns:           a.Campaigns,
		Customers:           a.Customers,
		Executor:            a.Executor,
		Locker:              a.locker(),
		Triggers:            triggers,
		CampaignConcurrency: cfg.Scheduler.CampaignConcurrency,
		LockTTL:             cfg.Scheduler.LockTTL(),
		RunHour:             cfg.Scheduler.Hour,
		Location:            cfg.Scheduler.Location(),
		Tick:                cfg.Scheduler.Tick(),
		Logger:              a.Logger,
	}
	a.Tracker = &service.DeliveryTracker{
		Campaigns:  a.Campaigns,
		Executions: a.Executions,
		Providers:  a.Providers,
		Logger:     a.Logger,
	}
	a.CampaignService = &service.CampaignService{
		CampaignRepo:  a.Campaigns,
		CustomerRepo:  a.Customers,
		ExecutionRepo: a.Executions,
		Queue:         a.Queue,
		Selector:      selector,
		Triggers:      triggers,
		Location:      cfg.Scheduler.Location(),
		Logger:        a.Logger,
	}
}

// limiter shares provider quotas across processes when Redis is available.
func (a *App) limiter() ratelimit.Limiter {
	switch {
	case len(a.Config.RateLimits) == 0:
		return ratelimit.Unlimited{}
	case a.Redis != nil:
		return ratelimit.NewRedis(a.Redis, a.Config.RateLimits)
	}
	return ratelimit.NewLocal(a.Config.RateLimits)
}

func (a *App) locker() lock.Locker {
	switch {
	case a.Redis != nil:
		return lock.NewRedis(a.Redis)
	case a.DB != nil:
		return lock.NewPostgres(a.DB)
	}
	return lock.NewLocal()
}

// Today is the scheduler's current business date.
func (a *App) Today() time.Time {
	return service.LocalDate(time.Now(), a.Config.Scheduler.Location())
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
