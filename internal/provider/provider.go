// Package provider adapts messaging backends (SMS gateways, the WhatsApp
// Business API and SES email) behind one interface. Each adapter owns its
// wire format, authentication and native status vocabulary; callers only
// see Message, Response and model.DeliveryStatus.
package provider

import (
	"context"
	"regexp"
	"strings"

	"github.com/unclebandit/oudcrm-automation/internal/model"
)

// Adapter is a single messaging backend.
//
// Send returns a non-nil Response on success. Failures are returned as
// *appErrors.DispatchError: Rejection when the provider refused the
// payload, Infrastructure when it could not be reached.
type Adapter interface {
	Name() string
	Channel() model.Channel
	Send(ctx context.Context, msg *Message) (*Response, error)
	QueryStatus(ctx context.Context, providerMessageID string) (model.DeliveryStatus, error)
	ValidateNumber(destination string) bool
}

// StatusPoller is implemented by adapters that can look up a delivery
// receipt. Adapters without it answer QueryStatus with a Sent default.
type StatusPoller interface {
	PollsStatus() bool
}

// Message is a rendered, addressed message ready for a backend.
type Message struct {
	To       string // E.164 phone number or email address
	Body     string
	Subject  string
	SenderID string
	Language string
	Encoding Encoding

	// TemplateName selects an approved WhatsApp template; Body is then
	// passed as its single body parameter.
	TemplateName string
	// Reference is echoed to providers that accept a client reference.
	Reference string
}

// Response is the provider's answer to a send. Success false with Error is
// a refusal the provider reported in a well-formed answer, possibly after
// accepting part of a multipart message (Cost and Segments then cover the
// accepted parts). Transport failures and refusals detected from the HTTP
// status are returned as errors instead.
type Response struct {
	Success           bool
	ProviderMessageID string
	Cost              float64
	Segments          int
	Error             string
}

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// IsE164 reports whether s is +<8 to 15 digits> with no leading zero.
func IsE164(s string) bool {
	return e164.MatchString(s)
}

// normalizeStatus maps a native status through table. Unknown values are
// treated as still in flight.
func normalizeStatus(table map[string]model.DeliveryStatus, native string) model.DeliveryStatus {
	if s, ok := table[strings.ToLower(strings.TrimSpace(native))]; ok {
		return s
	}
	return model.DeliveryQueued
}
