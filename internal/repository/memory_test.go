package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
)

func TestMemoryExecution_IdempotencyKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2024, 3, 21, 0, 0, 0, 0, time.UTC)

	first := &model.CampaignExecution{CampaignID: 1, CustomerID: 2, FiringDate: day}
	require.NoError(t, store.Executions.Create(ctx, first))
	assert.NotEmpty(t, first.ID)

	dup := &model.CampaignExecution{CampaignID: 1, CustomerID: 2, FiringDate: day}
	assert.ErrorIs(t, store.Executions.Create(ctx, dup), appErrors.ErrDuplicateExecution)

	nextDay := &model.CampaignExecution{CampaignID: 1, CustomerID: 2, FiringDate: day.AddDate(0, 0, 1)}
	assert.NoError(t, store.Executions.Create(ctx, nextDay))

	first.Status = model.ExecutionFailed
	first.Error = "regional rejection: invalid sender"
	require.NoError(t, store.Executions.UpdateStatus(ctx, first))

	retry := &model.CampaignExecution{CampaignID: 1, CustomerID: 2, FiringDate: day}
	assert.NoError(t, store.Executions.Create(ctx, retry), "a failed execution does not block a retry")

	stats, err := store.Executions.StatsByCampaign(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"pending": 2, "sent": 0, "failed": 1}, stats)
}

func TestMemoryExecution_UpdateDeliveryOnlyOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	e := &model.CampaignExecution{CampaignID: 1, CustomerID: 2, FiringDate: time.Now()}
	require.NoError(t, store.Executions.Create(ctx, e))

	changed, err := store.Executions.UpdateDelivery(ctx, e.ID, model.DeliveryDelivered)
	require.NoError(t, err)
	assert.False(t, changed, "pending executions have no delivery state")

	e.Status = model.ExecutionSent
	e.DeliveryStatus = model.DeliverySent
	e.Provider = "generic_a"
	e.ProviderMessageID = "SM123"
	require.NoError(t, store.Executions.UpdateStatus(ctx, e))

	awaiting, err := store.Executions.ListAwaitingDelivery(ctx, []string{"generic_a"}, 10)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)

	awaiting, _ = store.Executions.ListAwaitingDelivery(ctx, []string{"regional"}, 10)
	assert.Empty(t, awaiting, "only pollable providers")

	changed, _ = store.Executions.UpdateDelivery(ctx, e.ID, model.DeliveryDelivered)
	assert.True(t, changed)
	changed, _ = store.Executions.UpdateDelivery(ctx, e.ID, model.DeliveryFailed)
	assert.False(t, changed, "delivered is final")

	found, err := store.Executions.FindByProviderMessageID(ctx, "SM123")
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryDelivered, found.DeliveryStatus)

	awaiting, _ = store.Executions.ListAwaitingDelivery(ctx, []string{"generic_a"}, 10)
	assert.Empty(t, awaiting)
}

func TestMemoryExecution_AwaitingDeliveryLeastRecentlyPolledFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	ids := make([]string, 3)
	for i := range ids {
		e := &model.CampaignExecution{ID: string(rune('a' + i)), CampaignID: 1, CustomerID: i + 1, FiringDate: base}
		require.NoError(t, store.Executions.Create(ctx, e))
		e.Status = model.ExecutionSent
		e.DeliveryStatus = model.DeliverySent
		e.Provider = "generic_a"
		e.ProviderMessageID = "SM" + e.ID
		require.NoError(t, store.Executions.UpdateStatus(ctx, e))
		ids[i] = e.ID
	}

	batch, err := store.Executions.ListAwaitingDelivery(ctx, []string{"generic_a"}, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.NoError(t, store.Executions.MarkPolled(ctx, []string{batch[0].ID, batch[1].ID}))

	next, err := store.Executions.ListAwaitingDelivery(ctx, []string{"generic_a"}, 2)
	require.NoError(t, err)
	require.Len(t, next, 2)
	seen := map[string]bool{batch[0].ID: true, batch[1].ID: true, next[0].ID: true}
	assert.Len(t, seen, 3, "the unpolled execution comes first")
	assert.NoError(t, store.Executions.MarkPolled(ctx, []string{"missing"}))
}

func TestMemoryCampaign_CountersAndListing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	birthday := &model.Campaign{Name: "Birthday", Type: model.CampaignTypeSMS, TriggerType: model.TriggerBirthday, Status: model.CampaignRunning}
	manual := &model.Campaign{Name: "Launch", Type: model.CampaignTypeEmail, Status: model.CampaignRunning}
	paused := &model.Campaign{Name: "Eid", Type: model.CampaignTypeWhatsApp, TriggerType: model.TriggerSeasonal, Status: model.CampaignPaused}
	for _, c := range []*model.Campaign{birthday, manual, paused} {
		require.NoError(t, store.Campaigns.Create(ctx, c))
	}

	running, err := store.Campaigns.ListRunningTriggered(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, birthday.ID, running[0].ID)

	require.NoError(t, store.Campaigns.IncrementCounter(ctx, birthday.ID, model.CounterSent))
	require.NoError(t, store.Campaigns.IncrementCounter(ctx, birthday.ID, model.CounterSent))
	got, err := store.Campaigns.GetByID(ctx, birthday.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Counters.Sent)

	require.NoError(t, store.Campaigns.UpdateStatus(ctx, birthday.ID, model.CampaignCancelled))
	status, err := store.Campaigns.GetStatus(ctx, birthday.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCancelled, status)

	page, total, err := store.Campaigns.ListCampaigns(ctx, 0, 2, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)
	assert.Equal(t, paused.ID, page[0].ID, "newest first")

	_, err = store.Campaigns.GetByID(ctx, 999)
	assert.True(t, appErrors.IsCampaignNotFound(err))
}

func TestMemoryExecution_Breakdown(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	dubai := &model.CustomerSnapshot{Name: "Ahmed", Segment: "VIP", Region: "Dubai"}
	sharjah := &model.CustomerSnapshot{Name: "Sara", Segment: "Regular", Region: "Sharjah"}
	require.NoError(t, store.Customers.Create(ctx, dubai))
	require.NoError(t, store.Customers.Create(ctx, sharjah))

	for _, c := range []*model.CustomerSnapshot{dubai, sharjah} {
		e := &model.CampaignExecution{CampaignID: 9, CustomerID: c.ID, FiringDate: time.Now()}
		require.NoError(t, store.Executions.Create(ctx, e))
		e.Status = model.ExecutionSent
		if c == sharjah {
			e.Status = model.ExecutionFailed
		}
		require.NoError(t, store.Executions.UpdateStatus(ctx, e))
	}

	rows, err := store.Executions.Breakdown(ctx, 9, DimensionRegion)
	require.NoError(t, err)
	assert.Equal(t, []model.BreakdownRow{
		{Key: "Dubai", Total: 1, Sent: 1},
		{Key: "Sharjah", Total: 1, Failed: 1},
	}, rows)

	rows, err = store.Executions.Breakdown(ctx, 9, DimensionSegment)
	require.NoError(t, err)
	assert.Equal(t, "Regular", rows[0].Key)
}

func TestMemoryCustomer_ListActiveAppliesFilter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	gold := "Gold"

	require.NoError(t, store.Customers.Create(ctx, &model.CustomerSnapshot{Name: "A", Segment: "VIP", LoyaltyTier: &gold}))
	require.NoError(t, store.Customers.Create(ctx, &model.CustomerSnapshot{Name: "B", Segment: "Regular"}))

	all, err := store.Customers.ListActive(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	vip, err := store.Customers.ListActive(ctx, &model.SegmentFilter{Segments: []string{"vip"}})
	require.NoError(t, err)
	require.Len(t, vip, 1)
	assert.Equal(t, "A", vip[0].Name)

	_, err = store.Customers.GetByID(ctx, 404)
	assert.ErrorIs(t, err, appErrors.ErrCustomerNotFound)
}
