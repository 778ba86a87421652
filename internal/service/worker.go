package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/queue"
	"github.com/unclebandit/oudcrm-automation/internal/trigger"
)

// CampaignRunner runs one campaign for a date.
type CampaignRunner interface {
	RunCampaign(ctx context.Context, campaignID int, today time.Time) (*model.CampaignReport, error)
}

// Worker processes queued campaign run requests.
type Worker struct {
	Runner CampaignRunner
	Queue  queue.Queue
	Logger *slog.Logger
	// Reports receives each finished report. Optional.
	Reports chan<- *model.CampaignReport

	ctx context.Context
}

// Constructor
func NewWorker(ctx context.Context, runner CampaignRunner, q queue.Queue) *Worker {
	return &Worker{Runner: runner, Queue: q, Logger: slog.Default(), ctx: ctx}
}

// Start subscribes to the campaign run topic.
func (w *Worker) Start() error {
	return w.Queue.Subscribe(queue.TopicCampaignRuns, w.Handle)
}

// Handle runs one request. Malformed payloads are acknowledged and dropped;
// only infrastructure errors from the run are returned for redelivery.
func (w *Worker) Handle(payload []byte) error {
	var req queue.RunRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		w.Logger.Warn("invalid run request", "error", err)
		return nil
	}
	today, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		w.Logger.Warn("invalid run date", "campaign_id", req.CampaignID, "date", req.Date, "error", err)
		return nil
	}

	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := w.Runner.RunCampaign(ctx, req.CampaignID, today)
	if err != nil {
		if permanent(err) {
			w.Logger.Warn("campaign run rejected", "campaign_id", req.CampaignID, "error", err)
			return nil
		}
		return fmt.Errorf("run campaign %d: %w", req.CampaignID, err)
	}
	w.Logger.Info("campaign run processed",
		"campaign_id", req.CampaignID, "date", req.Date, "sent", report.Sent, "failed", report.Failed)
	if w.Reports != nil {
		w.Reports <- report
	}
	return nil
}

// permanent errors cannot succeed on redelivery.
func permanent(err error) bool {
	return appErrors.IsCampaignNotFound(err) ||
		errors.Is(err, appErrors.ErrCampaignNotRunning) ||
		errors.Is(err, appErrors.ErrUnknownTrigger) ||
		errors.Is(err, trigger.ErrUnknownOccasion)
}
