package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/lock"
	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/repository"
	"github.com/unclebandit/oudcrm-automation/internal/trigger"
)

// Scheduler is the daily entry point for triggered automation: it loads
// running triggered campaigns, evaluates their trigger for "today" and hands
// the eligible customers to the Executor.
type Scheduler struct {
	Campaigns repository.CampaignRepositoryInterface
	Customers repository.CustomerRepositoryInterface
	Executor  *Executor
	Locker    lock.Locker
	Triggers  trigger.Options

	// CampaignConcurrency bounds how many campaigns run at once.
	CampaignConcurrency int
	LockTTL             time.Duration
	// RunHour is the local hour at which Start fires the daily run.
	RunHour  int
	Location *time.Location
	Tick     time.Duration
	Logger   *slog.Logger

	now     func() time.Time
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun string
}

// RunScheduledCampaigns runs every running triggered campaign once for
// today. A second call for the same date while the first holds the lock
// returns appErrors.ErrLockHeld; a completed date can be rerun safely since
// executions are idempotent per firing date.
func (s *Scheduler) RunScheduledCampaigns(ctx context.Context, today time.Time) (*model.SchedulerReport, error) {
	day := model.DateOnly(today)
	key := "scheduler:" + day.Format(time.DateOnly)

	if s.Locker != nil {
		l, ok, err := s.Locker.Acquire(ctx, key, s.lockTTL())
		if err != nil {
			return nil, fmt.Errorf("scheduler lock: %w", err)
		}
		if !ok {
			return nil, appErrors.ErrLockHeld
		}
		defer func() {
			if err := l.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger().Warn("failed to release scheduler lock", "key", key, "error", err)
			}
		}()
	}

	campaigns, err := s.Campaigns.ListRunningTriggered(ctx)
	if err != nil {
		return nil, fmt.Errorf("list running campaigns: %w", err)
	}

	report := &model.SchedulerReport{Date: day}
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.campaignConcurrency())

	for _, c := range campaigns {
		if !c.TriggerType.Automated() {
			report.Skipped = append(report.Skipped, model.CampaignSkip{
				CampaignID: c.ID,
				Reason:     fmt.Sprintf("unrecognized trigger type %q", c.TriggerType),
			})
			continue
		}
		c := c
		g.Go(func() error {
			cr, err := s.runCampaign(ctx, c, today)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Campaigns = append(report.Campaigns, *cr)
			case errors.Is(err, trigger.ErrUnknownOccasion), errors.Is(err, appErrors.ErrUnknownTrigger):
				report.Skipped = append(report.Skipped, model.CampaignSkip{CampaignID: c.ID, Reason: err.Error()})
			default:
				report.Errors = append(report.Errors, model.CampaignSkip{CampaignID: c.ID, Reason: err.Error()})
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(report.Campaigns, func(i, j int) bool { return report.Campaigns[i].CampaignID < report.Campaigns[j].CampaignID })

	s.logger().Info("scheduled run finished",
		"date", day.Format(time.DateOnly),
		"campaigns", len(report.Campaigns),
		"skipped", len(report.Skipped),
		"errors", len(report.Errors),
	)
	return report, nil
}

// RunCampaign runs a single triggered campaign for today, regardless of the
// daily lock. Only running campaigns with an automated trigger are accepted.
func (s *Scheduler) RunCampaign(ctx context.Context, campaignID int, today time.Time) (*model.CampaignReport, error) {
	c, err := s.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignRunning {
		return nil, fmt.Errorf("campaign %d is %s: %w", c.ID, c.Status, appErrors.ErrCampaignNotRunning)
	}
	return s.runCampaign(ctx, c, today)
}

func (s *Scheduler) runCampaign(ctx context.Context, c *model.Campaign, today time.Time) (*model.CampaignReport, error) {
	ev, err := trigger.New(c, s.Triggers)
	if err != nil {
		s.logger().Warn("skipping campaign", "campaign_id", c.ID, "trigger_type", c.TriggerType, "error", err)
		return nil, err
	}
	customers, err := s.Customers.ListActive(ctx, c.SegmentFilter)
	if err != nil {
		return nil, fmt.Errorf("list customers for campaign %d: %w", c.ID, err)
	}
	eligible := trigger.EligibleCustomers(ev, trigger.Localize(customers, s.location()), today)
	return s.Executor.Execute(ctx, c, ev, eligible, today)
}

// Start runs the daily loop until ctx is cancelled or Stop is called. The
// run fires on the first tick at or after RunHour local time, once per day.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	tick := s.Tick
	if tick <= 0 {
		tick = time.Minute
	}
	ticker := time.NewTicker(tick)

	go func() {
		defer close(s.done)
		defer ticker.Stop()
		s.logger().Info("scheduler started", "run_hour", s.RunHour, "tick", tick.String())
		s.maybeRun(ctx)
		for {
			select {
			case <-ctx.Done():
				s.logger().Info("scheduler stopped")
				return
			case <-ticker.C:
				s.maybeRun(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-progress run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) maybeRun(ctx context.Context) {
	now := s.clock().In(s.location())
	if now.Hour() < s.RunHour {
		return
	}
	day := now.Format(time.DateOnly)
	if s.lastRun == day {
		return
	}

	_, err := s.RunScheduledCampaigns(ctx, LocalDate(now, s.location()))
	switch {
	case err == nil:
		s.lastRun = day
	case errors.Is(err, appErrors.ErrLockHeld):
		// another instance owns today's run
		s.lastRun = day
	default:
		s.logger().Error("scheduled run failed", "date", day, "error", err)
	}
}

// LocalDate is the calendar date of now in loc, as a UTC midnight. Trigger
// evaluation and firing dates use this form.
func LocalDate(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Scheduler) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.UTC
}

func (s *Scheduler) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return time.Hour
}

func (s *Scheduler) campaignConcurrency() int {
	if s.CampaignConcurrency > 0 {
		return s.CampaignConcurrency
	}
	return 2
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
