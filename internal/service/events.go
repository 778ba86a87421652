package service

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/queue"
)

// EventAudit drains the execution event topic into the structured log and
// keeps per-campaign outcome totals for the life of the process.
type EventAudit struct {
	Logger *slog.Logger

	mu     sync.Mutex
	totals map[int]map[model.ExecutionStatus]int
}

func (a *EventAudit) Start(q queue.Queue) error {
	return q.Subscribe(queue.TopicExecutionEvents, a.Handle)
}

// Handle records one event. Malformed events are dropped.
func (a *EventAudit) Handle(payload []byte) error {
	var ev model.ExecutionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		a.logger().Warn("invalid execution event", "error", err)
		return nil
	}

	a.mu.Lock()
	if a.totals == nil {
		a.totals = make(map[int]map[model.ExecutionStatus]int)
	}
	if a.totals[ev.CampaignID] == nil {
		a.totals[ev.CampaignID] = make(map[model.ExecutionStatus]int)
	}
	a.totals[ev.CampaignID][ev.Status]++
	a.mu.Unlock()

	attrs := []any{
		"execution_id", ev.ExecutionID,
		"campaign_id", ev.CampaignID,
		"customer_id", ev.CustomerID,
		"status", ev.Status,
		"channel", ev.Channel,
		"occurred_at", ev.OccurredAt,
	}
	if ev.Error != "" {
		a.logger().Warn("execution event", append(attrs, "error", ev.Error)...)
		return nil
	}
	a.logger().Info("execution event", attrs...)
	return nil
}

// Totals returns a copy of the outcome counts for a campaign.
func (a *EventAudit) Totals(campaignID int) map[model.ExecutionStatus]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[model.ExecutionStatus]int, len(a.totals[campaignID]))
	for k, v := range a.totals[campaignID] {
		out[k] = v
	}
	return out
}

func (a *EventAudit) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
