// Package channel picks the delivery channel for a customer from the
// campaign type's fallback chain and the customer's reachable contacts.
package channel

import (
	"fmt"
	"strings"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/phone"
)

// Selector walks a per-campaign-type fallback chain.
type Selector struct {
	Fallbacks map[model.CampaignType][]model.Channel
}

// DefaultSelector returns the standard policy. SMS campaigns never fall
// back to another channel.
func DefaultSelector() *Selector {
	return &Selector{Fallbacks: map[model.CampaignType][]model.Channel{
		model.CampaignTypeWhatsApp: {model.ChannelWhatsApp, model.ChannelEmail},
		model.CampaignTypeEmail:    {model.ChannelEmail, model.ChannelWhatsApp},
		model.CampaignTypeMixed:    {model.ChannelWhatsApp, model.ChannelSMS, model.ChannelEmail},
		model.CampaignTypeSMS:      {model.ChannelSMS},
	}}
}

// Select returns the first channel in the chain the customer can be reached on.
func (s *Selector) Select(c model.CustomerSnapshot, t model.CampaignType) (model.Channel, error) {
	chain, ok := s.Fallbacks[t]
	if !ok {
		return "", fmt.Errorf("%w: unsupported campaign type %q", appErrors.ErrNoViableChannel, t)
	}
	for _, ch := range chain {
		if Reachable(c, ch) {
			return ch, nil
		}
	}
	return "", fmt.Errorf("%w: customer %d has no contact for %s campaign", appErrors.ErrNoViableChannel, c.ID, t)
}

// Reachable reports whether the customer has a usable contact for ch.
func Reachable(c model.CustomerSnapshot, ch model.Channel) bool {
	_, err := Destination(c, ch)
	return err == nil
}

// Destination is the normalized address for ch: E.164 for phone channels,
// the trimmed email address otherwise.
func Destination(c model.CustomerSnapshot, ch model.Channel) (string, error) {
	switch ch {
	case model.ChannelWhatsApp, model.ChannelSMS:
		if strings.TrimSpace(c.Phone) == "" {
			return "", appErrors.Validation("customer has no phone number", nil)
		}
		n, err := phone.Normalize(c.Phone)
		if err != nil {
			return "", appErrors.Validation("invalid phone number", err)
		}
		return n, nil
	case model.ChannelEmail:
		e := strings.TrimSpace(c.Email)
		if e == "" || !strings.Contains(e, "@") {
			return "", appErrors.Validation("customer has no email address", nil)
		}
		return e, nil
	}
	return "", appErrors.Validation(fmt.Sprintf("unknown channel %q", ch), nil)
}
