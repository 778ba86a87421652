// internal/model/report.go
package model

import "time"

type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeHalted    Outcome = "halted"
)

// CustomerResult is the per-customer entry of a batch report.
type CustomerResult struct {
	CustomerID  int     `json:"customer_id"`
	Outcome     Outcome `json:"outcome"`
	ExecutionID string  `json:"execution_id,omitempty"`
	Channel     Channel `json:"channel,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// CampaignReport summarizes one campaign run.
type CampaignReport struct {
	CampaignID int              `json:"campaign_id"`
	FiredOn    time.Time        `json:"fired_on"`
	Eligible   int              `json:"eligible"`
	Sent       int              `json:"sent"`
	Failed     int              `json:"failed"`
	Skipped    int              `json:"skipped"`
	Duplicates int              `json:"duplicates"`
	Halted     bool             `json:"halted"`
	Results    []CustomerResult `json:"results"`
}

// Add records a result and updates the tallies.
func (r *CampaignReport) Add(res CustomerResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeSent:
		r.Sent++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeDuplicate:
		r.Duplicates++
	case OutcomeHalted:
		r.Halted = true
	}
}

type CampaignSkip struct {
	CampaignID int    `json:"campaign_id"`
	Reason     string `json:"reason"`
}

// SchedulerReport is the result of one RunScheduledCampaigns invocation.
type SchedulerReport struct {
	Date      time.Time        `json:"date"`
	Campaigns []CampaignReport `json:"campaigns"`
	Skipped   []CampaignSkip   `json:"skipped,omitempty"`
	Errors    []CampaignSkip   `json:"errors,omitempty"`
}

type BreakdownRow struct {
	Key    string `json:"key"`
	Total  int    `json:"total"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

type CampaignPerformance struct {
	CampaignID       int            `json:"campaign_id"`
	Sent             int64          `json:"sent"`
	Delivered        int64          `json:"delivered"`
	Opened           int64          `json:"opened"`
	Clicked          int64          `json:"clicked"`
	DeliveryRate     float64        `json:"delivery_rate"`
	OpenRate         float64        `json:"open_rate"`
	ClickRate        float64        `json:"click_rate"`
	Executions       map[string]int `json:"executions"`
	SegmentBreakdown []BreakdownRow `json:"segment_breakdown"`
	RegionBreakdown  []BreakdownRow `json:"region_breakdown"`
}
