package channel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
)

func TestSelect_FallbackChains(t *testing.T) {
	both := model.CustomerSnapshot{ID: 1, Phone: "0501234567", Email: "a@example.com"}
	emailOnly := model.CustomerSnapshot{ID: 2, Email: "b@example.com"}
	phoneOnly := model.CustomerSnapshot{ID: 3, Phone: "+971501234567"}

	tests := []struct {
		name     string
		customer model.CustomerSnapshot
		campaign model.CampaignType
		want     model.Channel
	}{
		{"whatsapp preferred", both, model.CampaignTypeWhatsApp, model.ChannelWhatsApp},
		{"whatsapp falls back to email", emailOnly, model.CampaignTypeWhatsApp, model.ChannelEmail},
		{"email preferred", both, model.CampaignTypeEmail, model.ChannelEmail},
		{"email falls back to whatsapp", phoneOnly, model.CampaignTypeEmail, model.ChannelWhatsApp},
		{"mixed starts with whatsapp", both, model.CampaignTypeMixed, model.ChannelWhatsApp},
		{"mixed ends with email", emailOnly, model.CampaignTypeMixed, model.ChannelEmail},
		{"sms", phoneOnly, model.CampaignTypeSMS, model.ChannelSMS},
	}
	sel := DefaultSelector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sel.Select(tt.customer, tt.campaign)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelect_SMSNeverFallsBackToEmail(t *testing.T) {
	_, err := DefaultSelector().Select(model.CustomerSnapshot{ID: 9, Email: "x@example.com"}, model.CampaignTypeSMS)
	assert.True(t, errors.Is(err, appErrors.ErrNoViableChannel))
}

func TestSelect_UnparseablePhoneIsNotReachable(t *testing.T) {
	c := model.CustomerSnapshot{Phone: "12"}
	_, err := DefaultSelector().Select(c, model.CampaignTypeWhatsApp)
	assert.True(t, errors.Is(err, appErrors.ErrNoViableChannel))
}

func TestDestination(t *testing.T) {
	c := model.CustomerSnapshot{Phone: "050 123 4567", Email: " sara@example.com "}

	got, err := Destination(c, model.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, "+971501234567", got)

	got, err = Destination(c, model.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, "sara@example.com", got)

	_, err = Destination(model.CustomerSnapshot{}, model.ChannelSMS)
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))
}
