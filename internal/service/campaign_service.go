// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unclebandit/oudcrm-automation/internal/channel"
	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/queue"
	"github.com/unclebandit/oudcrm-automation/internal/repository"
	"github.com/unclebandit/oudcrm-automation/internal/segment"
	"github.com/unclebandit/oudcrm-automation/internal/trigger"
)

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	CustomerRepo  repository.CustomerRepositoryInterface
	ExecutionRepo repository.ExecutionRepositoryInterface
	Queue         queue.Queue
	Selector      *channel.Selector
	Triggers      trigger.Options
	// Location is the business timezone customer timestamps are read in.
	Location *time.Location
	Logger   *slog.Logger
}

// Preview is a rendered message for one customer, without sending.
type Preview struct {
	CampaignID    int             `json:"campaign_id"`
	CustomerID    int             `json:"customer_id"`
	Language      string          `json:"language"`
	Subject       model.Bilingual `json:"subject"`
	Content       model.Bilingual `json:"content"`
	Channel       model.Channel   `json:"channel,omitempty"`
	ChannelError  string          `json:"channel_error,omitempty"`
	MatchesFilter bool            `json:"matches_filter"`
	Eligible      *bool           `json:"eligible_today,omitempty"`
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, campaignType, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, campaignType, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// GetCampaignPerformance aggregates the campaign counters and its
// execution records. Rates are 0 when their denominator is 0.
func (s *CampaignService) GetCampaignPerformance(ctx context.Context, campaignID int) (*model.CampaignPerformance, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.ExecutionRepo.StatsByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("execution stats: %w", err)
	}
	bySegment, err := s.ExecutionRepo.Breakdown(ctx, campaignID, repository.DimensionSegment)
	if err != nil {
		return nil, fmt.Errorf("segment breakdown: %w", err)
	}
	byRegion, err := s.ExecutionRepo.Breakdown(ctx, campaignID, repository.DimensionRegion)
	if err != nil {
		return nil, fmt.Errorf("region breakdown: %w", err)
	}

	counters := campaign.Counters
	return &model.CampaignPerformance{
		CampaignID:       campaign.ID,
		Sent:             counters.Sent,
		Delivered:        counters.Delivered,
		Opened:           counters.Opened,
		Clicked:          counters.Clicked,
		DeliveryRate:     ratio(counters.Delivered, counters.Sent),
		OpenRate:         ratio(counters.Opened, counters.Delivered),
		ClickRate:        ratio(counters.Clicked, counters.Delivered),
		Executions:       stats,
		SegmentBreakdown: bySegment,
		RegionBreakdown:  byRegion,
	}, nil
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// RenderPreview renders both language variants for a customer and reports
// the channel the executor would pick.
func (s *CampaignService) RenderPreview(ctx context.Context, campaignID, customerID int, today time.Time) (*Preview, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	found, err := s.CustomerRepo.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	customer := &trigger.Localize([]model.CustomerSnapshot{*found}, s.Location)[0]

	p := &Preview{
		CampaignID:    campaign.ID,
		CustomerID:    customer.ID,
		Language:      customer.Language(),
		MatchesFilter: segment.Matches(*customer, campaign.SegmentFilter),
	}

	var ev trigger.Evaluator
	if campaign.TriggerType.Automated() {
		ev, err = trigger.New(campaign, s.Triggers)
		if err != nil {
			return nil, err
		}
		eligible := ev.Eligible(*customer, today)
		p.Eligible = &eligible
	}
	p.Subject, p.Content = renderMessage(campaign, *customer, ev, today)

	selector := s.Selector
	if selector == nil {
		selector = channel.DefaultSelector()
	}
	if ch, err := selector.Select(*customer, campaign.Type); err != nil {
		p.ChannelError = err.Error()
	} else {
		p.Channel = ch
	}
	return p, nil
}

// RequestRun enqueues a run of one campaign for a worker to pick up.
func (s *CampaignService) RequestRun(ctx context.Context, campaignID int, today time.Time) error {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != model.CampaignRunning {
		return fmt.Errorf("campaign %d is %s: %w", campaign.ID, campaign.Status, appErrors.ErrCampaignNotRunning)
	}
	if !campaign.TriggerType.Automated() {
		return fmt.Errorf("campaign %d: %w %q", campaign.ID, appErrors.ErrUnknownTrigger, campaign.TriggerType)
	}
	req := queue.RunRequest{CampaignID: campaign.ID, Date: today.Format(time.DateOnly)}
	if err := s.Queue.Publish(queue.TopicCampaignRuns, req); err != nil {
		return fmt.Errorf("enqueue campaign run: %w", err)
	}
	s.logger().Info("campaign run queued", "campaign_id", campaign.ID, "date", req.Date)
	return nil
}

func (s *CampaignService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
