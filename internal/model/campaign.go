// internal/model/campaign.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CampaignType is the channel family a campaign is authored for.
type CampaignType string

const (
	CampaignTypeSMS      CampaignType = "sms"
	CampaignTypeWhatsApp CampaignType = "whatsapp"
	CampaignTypeEmail    CampaignType = "email"
	CampaignTypeMixed    CampaignType = "mixed"
)

func (t CampaignType) Valid() bool {
	switch t {
	case CampaignTypeSMS, CampaignTypeWhatsApp, CampaignTypeEmail, CampaignTypeMixed:
		return true
	}
	return false
}

// TriggerType selects the automation rule that picks a campaign's audience.
type TriggerType string

const (
	TriggerBirthday    TriggerType = "birthday"
	TriggerAnniversary TriggerType = "anniversary"
	TriggerWinBack     TriggerType = "win_back"
	TriggerSeasonal    TriggerType = "seasonal"
	TriggerNone        TriggerType = "none"
)

// Automated reports whether the scheduler handles campaigns of this trigger type.
func (t TriggerType) Automated() bool {
	switch t {
	case TriggerBirthday, TriggerAnniversary, TriggerWinBack, TriggerSeasonal:
		return true
	}
	return false
}

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Halted is true for statuses that must stop an in-progress dispatch.
func (s CampaignStatus) Halted() bool {
	return s == CampaignPaused || s == CampaignCancelled
}

// Counter names one of the campaign's cumulative counters.
type Counter string

const (
	CounterSent      Counter = "sent"
	CounterDelivered Counter = "delivered"
	CounterOpened    Counter = "opened"
	CounterClicked   Counter = "clicked"
)

func (c Counter) Valid() bool {
	switch c {
	case CounterSent, CounterDelivered, CounterOpened, CounterClicked:
		return true
	}
	return false
}

// Bilingual holds the English and Arabic variants of a text. Translations
// are stored side by side, never derived from each other.
type Bilingual struct {
	En string `json:"en"`
	Ar string `json:"ar"`
}

// For returns the variant for a language code, falling back to English
// when the Arabic variant is empty.
func (b Bilingual) For(lang string) string {
	if lang == LanguageArabic && b.Ar != "" {
		return b.Ar
	}
	return b.En
}

const (
	LanguageEnglish = "en"
	LanguageArabic  = "ar"
)

// SegmentFilter is an AND-composed audience predicate. A nil slice or nil
// bound leaves that dimension unconstrained.
type SegmentFilter struct {
	Segments         []string `json:"segments,omitempty"`
	MinLifetimeValue *float64 `json:"min_lifetime_value,omitempty"`
	MaxLifetimeValue *float64 `json:"max_lifetime_value,omitempty"`
	LoyaltyTiers     []string `json:"loyalty_tiers,omitempty"`
	Regions          []string `json:"regions,omitempty"`
}

// Value implements driver.Valuer so the filter is stored as a JSON column.
func (f *SegmentFilter) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner.
func (f *SegmentFilter) Scan(src any) error {
	return scanJSON(src, f)
}

// TriggerValue carries trigger-specific parameters.
type TriggerValue struct {
	EventType        string `json:"eventType,omitempty"`
	InactivityDays   int    `json:"inactivityDays,omitempty"`
	AnniversaryYears int    `json:"anniversaryYears,omitempty"`
	DiscountCode     string `json:"discountCode,omitempty"`
	WhatsAppTemplate string `json:"whatsappTemplate,omitempty"`
}

func (v TriggerValue) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *TriggerValue) Scan(src any) error {
	return scanJSON(src, v)
}

type Counters struct {
	Sent      int64 `db:"sent_count" json:"sent"`
	Delivered int64 `db:"delivered_count" json:"delivered"`
	Opened    int64 `db:"opened_count" json:"opened"`
	Clicked   int64 `db:"clicked_count" json:"clicked"`
}

type Campaign struct {
	ID            int            `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	Type          CampaignType   `db:"type" json:"type"`
	TriggerType   TriggerType    `db:"trigger_type" json:"trigger_type"`
	Status        CampaignStatus `db:"status" json:"status"`
	SegmentFilter *SegmentFilter `db:"segment_filter" json:"segment_filter,omitempty"`
	Subject       Bilingual      `db:"subject" json:"subject"`
	Content       Bilingual      `db:"content" json:"content"`
	TriggerValue  TriggerValue   `db:"trigger_value" json:"trigger_value"`
	SenderID      string         `db:"sender_id" json:"sender_id,omitempty"`
	Counters      Counters       `json:"counters"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
