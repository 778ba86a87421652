package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/segment"
)

// MemoryStore keeps campaigns, customers and executions in process memory
// with the same idempotency and counter semantics as the PostgreSQL
// repositories. It backs the "memory" storage driver and service tests.
type MemoryStore struct {
	mu         sync.RWMutex
	campaigns  map[int]*model.Campaign
	customers  map[int]*model.CustomerSnapshot
	executions map[string]*model.CampaignExecution
	nextID     int
	// polled holds a poll sequence number per execution id.
	polled  map[string]int64
	pollSeq int64

	Campaigns  *MemoryCampaignRepository
	Customers  *MemoryCustomerRepository
	Executions *MemoryExecutionRepository
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		campaigns:  make(map[int]*model.Campaign),
		customers:  make(map[int]*model.CustomerSnapshot),
		executions: make(map[string]*model.CampaignExecution),
		polled:     make(map[string]int64),
	}
	s.Campaigns = &MemoryCampaignRepository{s: s}
	s.Customers = &MemoryCustomerRepository{s: s}
	s.Executions = &MemoryExecutionRepository{s: s}
	return s
}

func (s *MemoryStore) id() int {
	s.nextID++
	return s.nextID
}

// ---- campaigns ----

type MemoryCampaignRepository struct {
	s *MemoryStore
}

func (r *MemoryCampaignRepository) Create(_ context.Context, c *model.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.s.id()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.TriggerType == "" {
		c.TriggerType = model.TriggerNone
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	cp := *c
	r.s.campaigns[c.ID] = &cp
	return nil
}

func (r *MemoryCampaignRepository) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCampaignRepository) GetStatus(_ context.Context, id int) (model.CampaignStatus, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return "", appErrors.NewCampaignNotFound(id)
	}
	return c.Status, nil
}

func (r *MemoryCampaignRepository) UpdateStatus(_ context.Context, id int, status model.CampaignStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	now := time.Now()
	c.Status = status
	c.UpdatedAt = &now
	return nil
}

func (r *MemoryCampaignRepository) ListCampaigns(_ context.Context, offset, limit int, campaignType, status string) ([]*model.Campaign, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	matched := []*model.Campaign{}
	for _, c := range r.s.campaigns {
		if campaignType != "" && string(c.Type) != campaignType {
			continue
		}
		if status != "" && string(c.Status) != status {
			continue
		}
		cp := *c
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *MemoryCampaignRepository) ListRunningTriggered(_ context.Context) ([]*model.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*model.Campaign{}
	for _, c := range r.s.campaigns {
		if c.Status == model.CampaignRunning && c.TriggerType != model.TriggerNone {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryCampaignRepository) IncrementCounter(_ context.Context, id int, counter model.Counter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	switch counter {
	case model.CounterSent:
		c.Counters.Sent++
	case model.CounterDelivered:
		c.Counters.Delivered++
	case model.CounterOpened:
		c.Counters.Opened++
	case model.CounterClicked:
		c.Counters.Clicked++
	default:
		return fmt.Errorf("unknown counter %q", counter)
	}
	return nil
}

// ---- customers ----

type MemoryCustomerRepository struct {
	s *MemoryStore
}

func (r *MemoryCustomerRepository) Create(_ context.Context, c *model.CustomerSnapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.s.id()
	}
	cp := *c
	r.s.customers[c.ID] = &cp
	return nil
}

func (r *MemoryCustomerRepository) GetByID(_ context.Context, id int) (*model.CustomerSnapshot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %d: %w", id, appErrors.ErrCustomerNotFound)
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCustomerRepository) ListActive(_ context.Context, filter *model.SegmentFilter) ([]model.CustomerSnapshot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []model.CustomerSnapshot{}
	for _, c := range r.s.customers {
		if segment.Matches(*c, filter) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- executions ----

type MemoryExecutionRepository struct {
	s *MemoryStore
}

func (r *MemoryExecutionRepository) Create(_ context.Context, e *model.CampaignExecution) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	firing := e.FiringDate.Format(time.DateOnly)
	for _, existing := range r.s.executions {
		if existing.CampaignID == e.CampaignID && existing.CustomerID == e.CustomerID &&
			existing.FiringDate.Format(time.DateOnly) == firing && existing.Status != model.ExecutionFailed {
			return appErrors.ErrDuplicateExecution
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.Status = model.ExecutionPending
	e.CreatedAt = now
	e.UpdatedAt = now
	cp := *e
	r.s.executions[e.ID] = &cp
	return nil
}

func (r *MemoryExecutionRepository) GetByID(_ context.Context, id string) (*model.CampaignExecution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", id, appErrors.ErrExecutionNotFound)
	}
	cp := *e
	return &cp, nil
}

func (r *MemoryExecutionRepository) UpdateStatus(_ context.Context, e *model.CampaignExecution) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.executions[e.ID]
	if !ok {
		return fmt.Errorf("execution %s: %w", e.ID, appErrors.ErrExecutionNotFound)
	}
	e.UpdatedAt = time.Now().UTC()
	stored.Status = e.Status
	stored.Channel = e.Channel
	stored.Provider = e.Provider
	stored.ProviderMessageID = e.ProviderMessageID
	stored.DeliveryStatus = e.DeliveryStatus
	stored.Cost = e.Cost
	stored.Segments = e.Segments
	stored.Error = e.Error
	stored.UpdatedAt = e.UpdatedAt
	return nil
}

func (r *MemoryExecutionRepository) UpdateDelivery(_ context.Context, id string, status model.DeliveryStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.executions[id]
	if !ok {
		return false, nil
	}
	if e.Status != model.ExecutionSent || e.DeliveryStatus.Final() || e.DeliveryStatus == status {
		return false, nil
	}
	e.DeliveryStatus = status
	e.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryExecutionRepository) ListAwaitingDelivery(_ context.Context, providers []string, limit int) ([]model.CampaignExecution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	cutoff := time.Now().UTC().Add(-DeliveryTrackingWindow)
	out := []model.CampaignExecution{}
	for _, e := range r.s.executions {
		if e.Status == model.ExecutionSent && !e.DeliveryStatus.Final() && e.ProviderMessageID != "" &&
			e.CreatedAt.After(cutoff) && slices.Contains(providers, e.Provider) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := r.s.polled[out[i].ID], r.s.polled[out[j].ID]
		if pi != pj {
			return pi < pj
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryExecutionRepository) MarkPolled(_ context.Context, ids []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.pollSeq++
	for _, id := range ids {
		if _, ok := r.s.executions[id]; ok {
			r.s.polled[id] = r.s.pollSeq
		}
	}
	return nil
}

func (r *MemoryExecutionRepository) FindByProviderMessageID(_ context.Context, providerMessageID string) (*model.CampaignExecution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.executions {
		if providerMessageID != "" && e.ProviderMessageID == providerMessageID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("provider message %s: %w", providerMessageID, appErrors.ErrExecutionNotFound)
}

func (r *MemoryExecutionRepository) StatsByCampaign(_ context.Context, campaignID int) (map[string]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stats := map[string]int{"pending": 0, "sent": 0, "failed": 0}
	for _, e := range r.s.executions {
		if e.CampaignID == campaignID {
			stats[string(e.Status)]++
		}
	}
	return stats, nil
}

func (r *MemoryExecutionRepository) Breakdown(_ context.Context, campaignID int, dimension string) ([]model.BreakdownRow, error) {
	if dimension != DimensionSegment && dimension != DimensionRegion {
		return nil, fmt.Errorf("unknown breakdown dimension %q", dimension)
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rows := map[string]*model.BreakdownRow{}
	for _, e := range r.s.executions {
		if e.CampaignID != campaignID {
			continue
		}
		c, ok := r.s.customers[e.CustomerID]
		if !ok {
			continue
		}
		key := c.Segment
		if dimension == DimensionRegion {
			key = c.Region
		}
		row, ok := rows[key]
		if !ok {
			row = &model.BreakdownRow{Key: key}
			rows[key] = row
		}
		row.Total++
		switch e.Status {
		case model.ExecutionSent:
			row.Sent++
		case model.ExecutionFailed:
			row.Failed++
		}
	}
	out := make([]model.BreakdownRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].Key, out[j].Key) < 0 })
	return out, nil
}

var (
	_ CampaignRepositoryInterface  = (*MemoryCampaignRepository)(nil)
	_ CustomerRepositoryInterface  = (*MemoryCustomerRepository)(nil)
	_ ExecutionRepositoryInterface = (*MemoryExecutionRepository)(nil)
)
