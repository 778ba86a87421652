package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/oudcrm-automation/internal/channel"
	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/provider"
	"github.com/unclebandit/oudcrm-automation/internal/queue"
	"github.com/unclebandit/oudcrm-automation/internal/ratelimit"
	"github.com/unclebandit/oudcrm-automation/internal/repository"
	"github.com/unclebandit/oudcrm-automation/internal/segment"
	"github.com/unclebandit/oudcrm-automation/internal/trigger"
)

const defaultWorkers = 10

// Executor dispatches one campaign to a set of trigger-eligible customers.
// Every customer is processed in isolation: a failure, panic or provider
// outage for one customer becomes a Failed result and the batch continues.
type Executor struct {
	Campaigns  repository.CampaignRepositoryInterface
	Executions repository.ExecutionRepositoryInterface
	Providers  *provider.Registry
	Selector   *channel.Selector
	Limiter    ratelimit.Limiter
	// Events receives an ExecutionEvent per finished execution. Optional.
	Events  queue.Queue
	Workers int
	Logger  *slog.Logger
}

// Execute runs the per-customer pipeline for customers already selected by
// ev. The returned report lists one result per customer in input order.
func (e *Executor) Execute(ctx context.Context, c *model.Campaign, ev trigger.Evaluator, customers []model.CustomerSnapshot, today time.Time) (*model.CampaignReport, error) {
	if c == nil {
		return nil, errors.New("campaign is required")
	}
	workers := e.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	report := &model.CampaignReport{
		CampaignID: c.ID,
		FiredOn:    model.DateOnly(today),
		Eligible:   len(customers),
	}
	results := make([]model.CustomerResult, len(customers))

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i := range customers {
		i := i
		g.Go(func() error {
			results[i] = e.processCustomer(ctx, c, ev, customers[i], today)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		report.Add(res)
	}
	e.logger().Info("campaign executed",
		"campaign_id", c.ID,
		"eligible", report.Eligible,
		"sent", report.Sent,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"duplicates", report.Duplicates,
		"halted", report.Halted,
	)
	return report, nil
}

// processCustomer never panics and never returns an error; every outcome is
// folded into the result.
func (e *Executor) processCustomer(ctx context.Context, c *model.Campaign, ev trigger.Evaluator, cust model.CustomerSnapshot, today time.Time) (res model.CustomerResult) {
	res = model.CustomerResult{CustomerID: cust.ID}
	var exec *model.CampaignExecution

	defer func() {
		if r := recover(); r != nil {
			e.logger().Error("customer dispatch panicked",
				"campaign_id", c.ID, "customer_id", cust.ID, "panic", r, "stack", string(debug.Stack()))
			res.Outcome = model.OutcomeFailed
			res.Reason = fmt.Sprintf("internal error: %v", r)
			if exec != nil {
				e.finish(context.WithoutCancel(ctx), exec, model.ExecutionFailed, res.Reason)
			}
		}
	}()

	// Exclusion by segment is not a failure.
	if !segment.Matches(cust, c.SegmentFilter) {
		res.Outcome = model.OutcomeSkipped
		res.Reason = "segment filter"
		return res
	}

	if halted, reason := e.halted(ctx, c.ID); halted {
		res.Outcome = model.OutcomeHalted
		res.Reason = reason
		return res
	}

	subject, body := renderMessage(c, cust, ev, today)
	firing := today
	if ev != nil {
		firing = ev.FiringDate(cust, today)
	}
	ch, adapter, dest, resolveErr := e.resolve(cust, c.Type)
	res.Channel = ch
	pending := &model.CampaignExecution{
		CampaignID: c.ID,
		CustomerID: cust.ID,
		FiringDate: model.DateOnly(firing),
		Channel:    ch,
	}

	// The pending record is written before any provider call.
	if err := e.Executions.Create(ctx, pending); err != nil {
		if errors.Is(err, appErrors.ErrDuplicateExecution) {
			res.Outcome = model.OutcomeDuplicate
			res.Reason = "already processed for this firing date"
			return res
		}
		res.Outcome = model.OutcomeFailed
		res.Reason = fmt.Sprintf("create execution: %v", err)
		e.logger().Error("failed to create execution", "campaign_id", c.ID, "customer_id", cust.ID, "error", err)
		return res
	}
	exec = pending
	res.ExecutionID = exec.ID

	if resolveErr != nil {
		return e.fail(ctx, exec, res, resolveErr)
	}

	lang := cust.Language()
	msg := &provider.Message{
		To:           dest,
		Body:         body.For(lang),
		Subject:      subject.For(lang),
		SenderID:     c.SenderID,
		Language:     lang,
		TemplateName: c.TriggerValue.WhatsAppTemplate,
		Reference:    exec.ID,
	}
	if ch == model.ChannelSMS {
		msg.Encoding = provider.DetectEncoding(lang, msg.Body)
	}

	if err := e.limiter().Wait(ctx, adapter.Name()); err != nil {
		return e.fail(ctx, exec, res, appErrors.Infrastructure(adapter.Name(), fmt.Errorf("rate limit wait: %w", err)))
	}

	// The campaign may have been paused while this worker waited for quota.
	if halted, reason := e.halted(ctx, c.ID); halted {
		e.finish(ctx, exec, model.ExecutionFailed, "not sent: "+reason)
		res.Outcome = model.OutcomeHalted
		res.Reason = reason
		return res
	}

	resp, err := adapter.Send(ctx, msg)
	if err == nil && (resp == nil || !resp.Success) {
		reason := "provider reported failure"
		if resp != nil {
			if resp.Error != "" {
				reason = resp.Error
			}
			exec.Cost = resp.Cost
			exec.Segments = resp.Segments
		}
		err = appErrors.Rejection(adapter.Name(), reason)
	}
	if err != nil {
		exec.Provider = adapter.Name()
		return e.fail(ctx, exec, res, err)
	}

	exec.Provider = adapter.Name()
	exec.ProviderMessageID = resp.ProviderMessageID
	exec.DeliveryStatus = model.DeliverySent
	exec.Cost = resp.Cost
	exec.Segments = resp.Segments
	e.finish(ctx, exec, model.ExecutionSent, "")

	if err := e.Campaigns.IncrementCounter(context.WithoutCancel(ctx), c.ID, model.CounterSent); err != nil {
		e.logger().Error("failed to increment sent counter", "campaign_id", c.ID, "error", err)
	}
	res.Outcome = model.OutcomeSent
	return res
}

// resolve picks the channel, destination and adapter. Errors are validation
// failures: the provider is never called.
func (e *Executor) resolve(cust model.CustomerSnapshot, t model.CampaignType) (model.Channel, provider.Adapter, string, error) {
	ch, err := e.selector().Select(cust, t)
	if err != nil {
		return "", nil, "", appErrors.Validation("", err)
	}
	dest, err := channel.Destination(cust, ch)
	if err != nil {
		return ch, nil, "", err
	}
	if e.Providers == nil {
		return ch, nil, dest, appErrors.Validation("no providers configured", appErrors.ErrNoProvider)
	}
	adapter, err := e.Providers.Resolve(ch, dest)
	if err != nil {
		return ch, nil, dest, appErrors.Validation("", err)
	}
	return ch, adapter, dest, nil
}

// halted re-reads the campaign status so a pause or cancel stops the
// remaining customers. Calls already made to providers are not undone.
func (e *Executor) halted(ctx context.Context, campaignID int) (bool, string) {
	if err := ctx.Err(); err != nil {
		return true, err.Error()
	}
	status, err := e.Campaigns.GetStatus(ctx, campaignID)
	if err != nil {
		return true, fmt.Sprintf("campaign status unavailable: %v", err)
	}
	if status.Halted() {
		return true, "campaign " + string(status)
	}
	return false, ""
}

func (e *Executor) fail(ctx context.Context, exec *model.CampaignExecution, res model.CustomerResult, err error) model.CustomerResult {
	res.Outcome = model.OutcomeFailed
	res.Reason = err.Error()
	e.logger().Warn("customer dispatch failed",
		"campaign_id", exec.CampaignID,
		"customer_id", exec.CustomerID,
		"execution_id", exec.ID,
		"kind", appErrors.KindOf(err).String(),
		"error", res.Reason,
	)
	e.finish(ctx, exec, model.ExecutionFailed, res.Reason)
	return res
}

// finish persists the final status and publishes the event. It survives a
// cancelled ctx so an in-flight send is never left Pending.
func (e *Executor) finish(ctx context.Context, exec *model.CampaignExecution, status model.ExecutionStatus, reason string) {
	ctx = context.WithoutCancel(ctx)
	exec.Status = status
	exec.Error = reason
	if err := e.Executions.UpdateStatus(ctx, exec); err != nil {
		e.logger().Error("failed to update execution", "execution_id", exec.ID, "status", status, "error", err)
	}
	if e.Events == nil {
		return
	}
	event := model.ExecutionEvent{
		ExecutionID: exec.ID,
		CampaignID:  exec.CampaignID,
		CustomerID:  exec.CustomerID,
		Status:      status,
		Channel:     exec.Channel,
		Error:       reason,
		OccurredAt:  time.Now().UTC(),
	}
	if err := e.Events.Publish(queue.TopicExecutionEvents, event); err != nil {
		e.logger().Warn("failed to publish execution event", "execution_id", exec.ID, "error", err)
	}
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Executor) limiter() ratelimit.Limiter {
	if e.Limiter != nil {
		return e.Limiter
	}
	return ratelimit.Unlimited{}
}

func (e *Executor) selector() *channel.Selector {
	if e.Selector != nil {
		return e.Selector
	}
	return channel.DefaultSelector()
}
