// internal/model/execution.go
package model

import "time"

// Channel is a communication medium with its own provider protocol.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
)

// UsesPhone reports whether the channel is addressed by phone number.
func (c Channel) UsesPhone() bool {
	return c == ChannelWhatsApp || c == ChannelSMS
}

type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "pending"
	ExecutionSent    ExecutionStatus = "sent"
	ExecutionFailed  ExecutionStatus = "failed"
)

// DeliveryStatus is the provider-agnostic delivery state of a sent message.
type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "queued"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Final reports whether no further delivery updates are expected.
func (s DeliveryStatus) Final() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

// CampaignExecution is one (campaign, customer, firing date) send attempt.
// At most one non-failed execution exists per key.
type CampaignExecution struct {
	ID                string          `db:"id" json:"id"`
	CampaignID        int             `db:"campaign_id" json:"campaign_id"`
	CustomerID        int             `db:"customer_id" json:"customer_id"`
	FiringDate        time.Time       `db:"firing_date" json:"firing_date"`
	Status            ExecutionStatus `db:"status" json:"status"`
	Channel           Channel         `db:"channel" json:"channel,omitempty"`
	Provider          string          `db:"provider" json:"provider,omitempty"`
	ProviderMessageID string          `db:"provider_message_id" json:"provider_message_id,omitempty"`
	DeliveryStatus    DeliveryStatus  `db:"delivery_status" json:"delivery_status,omitempty"`
	Cost              float64         `db:"cost" json:"cost"`
	Segments          int             `db:"segments" json:"segments"`
	Error             string          `db:"error" json:"error,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// SendOutcome is the provider-side result recorded on a sent execution.
type SendOutcome struct {
	Provider          string
	ProviderMessageID string
	Cost              float64
	Segments          int
}

// ExecutionEvent is published once an execution reaches a final status.
type ExecutionEvent struct {
	ExecutionID string          `json:"execution_id"`
	CampaignID  int             `json:"campaign_id"`
	CustomerID  int             `json:"customer_id"`
	Status      ExecutionStatus `json:"status"`
	Channel     Channel         `json:"channel,omitempty"`
	Error       string          `json:"error,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
