// internal/model/customer.go
package model

import (
	"strings"
	"time"
)

// CustomerSnapshot is the read-only view of a customer that the automation
// engine needs. The customer-management side owns and mutates the record.
type CustomerSnapshot struct {
	ID                int        `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	Phone             string     `db:"phone" json:"phone,omitempty"`
	Email             string     `db:"email" json:"email,omitempty"`
	PreferredLanguage string     `db:"preferred_language" json:"preferred_language"`
	DateOfBirth       *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	LastInteractionAt time.Time  `db:"last_interaction_at" json:"last_interaction_at"`
	Segment           string     `db:"segment" json:"segment"`
	LifetimeValue     float64    `db:"lifetime_value" json:"lifetime_value"`
	LoyaltyTier       *string    `db:"loyalty_tier" json:"loyalty_tier,omitempty"`
	LoyaltyPoints     int        `db:"loyalty_points" json:"loyalty_points"`
	Region            string     `db:"region" json:"region"`
	LastOrderAt       *time.Time `db:"last_order_at" json:"last_order_at,omitempty"`
}

// FirstName returns the first word of the display name.
func (c CustomerSnapshot) FirstName() string {
	if f := strings.Fields(c.Name); len(f) > 0 {
		return f[0]
	}
	return ""
}

func (c CustomerSnapshot) Language() string {
	if strings.EqualFold(c.PreferredLanguage, LanguageArabic) {
		return LanguageArabic
	}
	return LanguageEnglish
}
