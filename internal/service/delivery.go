package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/provider"
	"github.com/unclebandit/oudcrm-automation/internal/repository"
)

// DeliveryTracker moves sent executions to their final delivery status,
// either by polling providers or from webhook callbacks. The campaign's
// delivered counter is incremented once per execution, on the first
// transition to Delivered.
type DeliveryTracker struct {
	Campaigns  repository.CampaignRepositoryInterface
	Executions repository.ExecutionRepositoryInterface
	Providers  *provider.Registry
	Logger     *slog.Logger
}

// RefreshResult counts what one polling pass did.
type RefreshResult struct {
	Checked   int `json:"checked"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}

// Refresh queries the provider for up to limit executions still awaiting a
// receipt, least recently polled first, so a backlog of undelivered
// messages cannot hide newer ones. A provider error leaves the execution
// for a later pass.
func (t *DeliveryTracker) Refresh(ctx context.Context, limit int) (*RefreshResult, error) {
	pollable := t.Providers.Pollable()
	if len(pollable) == 0 {
		return &RefreshResult{}, nil
	}
	pending, err := t.Executions.ListAwaitingDelivery(ctx, pollable, limit)
	if err != nil {
		return nil, fmt.Errorf("list awaiting delivery: %w", err)
	}

	res := &RefreshResult{}
	polled := make([]string, 0, len(pending))
	defer func() {
		if err := t.Executions.MarkPolled(context.WithoutCancel(ctx), polled); err != nil {
			t.logger().Error("failed to record delivery poll", "count", len(polled), "error", err)
		}
	}()
	for _, exec := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		adapter, ok := t.Providers.Get(exec.Provider)
		if !ok {
			continue
		}
		polled = append(polled, exec.ID)
		res.Checked++
		status, err := adapter.QueryStatus(ctx, exec.ProviderMessageID)
		if err != nil {
			res.Errors++
			t.logger().Warn("delivery status query failed",
				"execution_id", exec.ID, "provider", exec.Provider, "error", err)
			continue
		}
		changed, err := t.apply(ctx, &exec, status)
		if err != nil {
			res.Errors++
			continue
		}
		if changed {
			switch status {
			case model.DeliveryDelivered:
				res.Delivered++
			case model.DeliveryFailed:
				res.Failed++
			}
		}
	}
	return res, nil
}

// ApplyStatus records a status reported out of band, e.g. by a webhook.
// Unknown message ids are ignored.
func (t *DeliveryTracker) ApplyStatus(ctx context.Context, providerMessageID string, status model.DeliveryStatus) (bool, error) {
	exec, err := t.Executions.FindByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		return false, err
	}
	return t.apply(ctx, exec, status)
}

func (t *DeliveryTracker) apply(ctx context.Context, exec *model.CampaignExecution, status model.DeliveryStatus) (bool, error) {
	changed, err := t.Executions.UpdateDelivery(ctx, exec.ID, status)
	if err != nil {
		t.logger().Error("failed to update delivery status", "execution_id", exec.ID, "error", err)
		return false, err
	}
	if !changed {
		return false, nil
	}
	if status == model.DeliveryDelivered {
		if err := t.Campaigns.IncrementCounter(ctx, exec.CampaignID, model.CounterDelivered); err != nil {
			t.logger().Error("failed to increment delivered counter", "campaign_id", exec.CampaignID, "error", err)
			return true, err
		}
	}
	t.logger().Debug("delivery status updated", "execution_id", exec.ID, "status", status)
	return true, nil
}

// Poll runs Refresh every interval until ctx is cancelled.
func (t *DeliveryTracker) Poll(ctx context.Context, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := t.Refresh(ctx, batch)
			if err != nil {
				t.logger().Error("delivery refresh failed", "error", err)
				continue
			}
			if res.Checked > 0 {
				t.logger().Info("delivery refresh", "checked", res.Checked, "delivered", res.Delivered, "failed", res.Failed, "errors", res.Errors)
			}
		}
	}
}

func (t *DeliveryTracker) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
