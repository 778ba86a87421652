package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/unclebandit/oudcrm-automation/internal/config"
	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
)

// Registry holds the configured adapters per channel, in fallback order.
type Registry struct {
	mu       sync.RWMutex
	channels map[model.Channel][]Adapter
	byName   map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{
		channels: make(map[model.Channel][]Adapter),
		byName:   make(map[string]Adapter),
	}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register appends a to its channel's fallback list.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[a.Channel()] = append(r.channels[a.Channel()], a)
	r.byName[a.Name()] = a
}

// Resolve returns the first adapter for ch that accepts destination.
func (r *Registry) Resolve(ch model.Channel, destination string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	candidates := r.channels[ch]
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no %s provider configured", appErrors.ErrNoProvider, ch)
	}
	for _, a := range candidates {
		if a.ValidateNumber(destination) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s destination rejected by %d provider(s)", appErrors.ErrNoProvider, ch, len(candidates))
}

// Get looks an adapter up by name, for status polling of sent executions.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}

// Pollable returns the names of adapters whose QueryStatus reaches the
// provider, sorted.
func (r *Registry) Pollable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []string{}
	for name, a := range r.byName {
		if p, ok := a.(StatusPoller); ok && p.PollsStatus() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Channels reports which channels have at least one adapter.
func (r *Registry) Channels() []model.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Channel, 0, len(r.channels))
	for _, ch := range []model.Channel{model.ChannelWhatsApp, model.ChannelSMS, model.ChannelEmail} {
		if len(r.channels[ch]) > 0 {
			out = append(out, ch)
		}
	}
	return out
}

type smsFactory func(cfg config.ProvidersConfig, client HTTPDoer, retry RetryPolicy) (Adapter, bool)

var smsFactories = map[string]smsFactory{
	GenericSMSAName: func(cfg config.ProvidersConfig, client HTTPDoer, retry RetryPolicy) (Adapter, bool) {
		c := cfg.GenericA
		return &GenericSMSA{
			BaseURL:        c.BaseURL,
			AccountSID:     c.AccountSID,
			APIKey:         c.APIKey,
			APISecret:      c.APISecret,
			From:           c.From,
			CostPerSegment: c.CostPerSegment,
			Client:         client,
			Retry:          retry,
		}, c.Enabled
	},
	GenericSMSBName: func(cfg config.ProvidersConfig, client HTTPDoer, retry RetryPolicy) (Adapter, bool) {
		c := cfg.GenericB
		return &GenericSMSB{
			BaseURL:   c.BaseURL,
			APIKey:    c.APIKey,
			APISecret: c.APISecret,
			From:      c.From,
			Client:    client,
			Retry:     retry,
		}, c.Enabled
	},
	RegionalName: func(cfg config.ProvidersConfig, client HTTPDoer, retry RetryPolicy) (Adapter, bool) {
		c := cfg.Regional
		return &Regional{
			BaseURL:        c.BaseURL,
			APIKey:         c.APIKey,
			SenderID:       c.SenderID,
			CostPerSegment: c.CostPerSegment,
			Client:         client,
			Retry:          retry,
		}, c.Enabled
	},
}

// NewRegistryFromConfig builds every enabled adapter. SMS adapters are
// registered in cfg.SMSOrder; unknown names are an error.
func NewRegistryFromConfig(ctx context.Context, cfg config.ProvidersConfig, retry RetryPolicy, client HTTPDoer) (*Registry, error) {
	if client == nil {
		client = &http.Client{}
	}
	r := NewRegistry()

	if cfg.WhatsApp.Enabled {
		r.Register(&WhatsApp{
			BaseURL:       cfg.WhatsApp.BaseURL,
			APIVersion:    cfg.WhatsApp.APIVersion,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			AccessToken:   cfg.WhatsApp.AccessToken,
			Client:        client,
			Retry:         retry,
		})
	}

	for _, name := range cfg.SMSOrder {
		factory, ok := smsFactories[name]
		if !ok {
			return nil, fmt.Errorf("unknown sms provider %q", name)
		}
		if a, enabled := factory(cfg, client, retry); enabled {
			r.Register(a)
		}
	}

	if cfg.SES.Enabled {
		sesClient, err := NewSESClient(ctx, cfg.SES.Region, cfg.SES.AccessKey, cfg.SES.SecretKey)
		if err != nil {
			return nil, err
		}
		r.Register(&SES{Client: sesClient, FromEmail: cfg.SES.FromEmail, FromName: cfg.SES.FromName, Retry: retry})
	}
	return r, nil
}
