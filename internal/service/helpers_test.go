package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/provider"
	"github.com/unclebandit/oudcrm-automation/internal/repository"
	"github.com/unclebandit/oudcrm-automation/internal/trigger"
)

// fakeAdapter records every message and answers with send, or success.
type fakeAdapter struct {
	name   string
	ch     model.Channel
	polls  bool
	status model.DeliveryStatus
	// statusOf overrides status per provider message id.
	statusOf func(id string) model.DeliveryStatus
	send     func(msg *provider.Message) (*provider.Response, error)

	mu      sync.Mutex
	sent    []*provider.Message
	queried []string
}

func (f *fakeAdapter) Name() string           { return f.name }
func (f *fakeAdapter) Channel() model.Channel { return f.ch }
func (f *fakeAdapter) PollsStatus() bool      { return f.polls }

func (f *fakeAdapter) Send(_ context.Context, msg *provider.Message) (*provider.Response, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	n := len(f.sent)
	f.mu.Unlock()
	if f.send != nil {
		return f.send(msg)
	}
	return &provider.Response{Success: true, ProviderMessageID: fmt.Sprintf("%s-%d", f.name, n), Segments: 1, Cost: 0.05}, nil
}

func (f *fakeAdapter) QueryStatus(_ context.Context, id string) (model.DeliveryStatus, error) {
	f.mu.Lock()
	f.queried = append(f.queried, id)
	f.mu.Unlock()
	if f.statusOf != nil {
		return f.statusOf(id), nil
	}
	if f.status == "" {
		return model.DeliverySent, nil
	}
	return f.status, nil
}

func (f *fakeAdapter) ValidateNumber(dest string) bool {
	if f.ch == model.ChannelEmail {
		return strings.Contains(dest, "@")
	}
	return provider.IsE164(dest)
}

func (f *fakeAdapter) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queried...)
}

func (f *fakeAdapter) messages() []*provider.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*provider.Message(nil), f.sent...)
}

type harness struct {
	store     *repository.MemoryStore
	sms       *fakeAdapter
	whatsapp  *fakeAdapter
	email     *fakeAdapter
	executor  *Executor
	scheduler *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    repository.NewMemoryStore(),
		sms:      &fakeAdapter{name: "generic_a", ch: model.ChannelSMS, polls: true},
		whatsapp: &fakeAdapter{name: "whatsapp", ch: model.ChannelWhatsApp},
		email:    &fakeAdapter{name: "ses", ch: model.ChannelEmail},
	}
	h.executor = &Executor{
		Campaigns:  h.store.Campaigns,
		Executions: h.store.Executions,
		Providers:  provider.NewRegistry(h.whatsapp, h.sms, h.email),
		Workers:    4,
	}
	h.scheduler = &Scheduler{
		Campaigns: h.store.Campaigns,
		Customers: h.store.Customers,
		Executor:  h.executor,
		Triggers:  trigger.DefaultOptions(),
	}
	return h
}

func (h *harness) campaign(t *testing.T, c *model.Campaign) *model.Campaign {
	t.Helper()
	if c.Status == "" {
		c.Status = model.CampaignRunning
	}
	require.NoError(t, h.store.Campaigns.Create(context.Background(), c))
	return c
}

func (h *harness) customer(t *testing.T, c *model.CustomerSnapshot) *model.CustomerSnapshot {
	t.Helper()
	require.NoError(t, h.store.Customers.Create(context.Background(), c))
	return c
}

func (h *harness) counters(t *testing.T, campaignID int) model.Counters {
	t.Helper()
	c, err := h.store.Campaigns.GetByID(context.Background(), campaignID)
	require.NoError(t, err)
	return c.Counters
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func birthdaySMS() *model.Campaign {
	return &model.Campaign{
		Name:        "Birthday",
		Type:        model.CampaignTypeSMS,
		TriggerType: model.TriggerBirthday,
		Content:     model.Bilingual{En: "Happy Birthday {{customerName}}!", Ar: "عيد ميلاد سعيد {{customerName}}!"},
	}
}
