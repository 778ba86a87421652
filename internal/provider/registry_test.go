package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/oudcrm-automation/internal/config"
	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
)

func TestRegistry_ResolveFallsBackByValidation(t *testing.T) {
	r := NewRegistry(&Regional{}, &GenericSMSA{})

	a, err := r.Resolve(model.ChannelSMS, "+971501234567")
	require.NoError(t, err)
	assert.Equal(t, RegionalName, a.Name())

	a, err = r.Resolve(model.ChannelSMS, "+966501234567")
	require.NoError(t, err)
	assert.Equal(t, GenericSMSAName, a.Name())
}

func TestRegistry_NoProvider(t *testing.T) {
	r := NewRegistry(&Regional{})

	_, err := r.Resolve(model.ChannelSMS, "+14155552671")
	assert.True(t, errors.Is(err, appErrors.ErrNoProvider))

	_, err = r.Resolve(model.ChannelWhatsApp, "+971501234567")
	assert.True(t, errors.Is(err, appErrors.ErrNoProvider))
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := config.ProvidersConfig{
		SMSOrder: []string{GenericSMSBName, RegionalName, GenericSMSAName},
		GenericB: config.GenericBConfig{Enabled: true},
		Regional: config.RegionalConfig{Enabled: true},
		WhatsApp: config.WhatsAppConfig{Enabled: true, APIVersion: "v19.0"},
	}
	r, err := NewRegistryFromConfig(context.Background(), cfg, DefaultRetryPolicy(), nil)
	require.NoError(t, err)

	a, err := r.Resolve(model.ChannelSMS, "+971501234567")
	require.NoError(t, err)
	assert.Equal(t, GenericSMSBName, a.Name(), "configured order wins")

	_, ok := r.Get(GenericSMSAName)
	assert.False(t, ok, "disabled providers are not registered")

	assert.Equal(t, []model.Channel{model.ChannelWhatsApp, model.ChannelSMS}, r.Channels())
}

func TestNewRegistryFromConfig_UnknownSMSProvider(t *testing.T) {
	_, err := NewRegistryFromConfig(context.Background(), config.ProvidersConfig{SMSOrder: []string{"carrier_pigeon"}}, DefaultRetryPolicy(), nil)
	assert.Error(t, err)
}
