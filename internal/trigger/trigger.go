// Package trigger computes which customers a triggered campaign fires for on
// a given day. Every evaluator takes "today" as an argument; none of them
// read the clock or keep state between runs.
package trigger

import (
	"fmt"
	"strconv"
	"time"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
)

const (
	DefaultWinBackDays      = 90
	DefaultAnniversaryYears = 1
)

// Options are the deployment-wide defaults. A campaign's TriggerValue
// overrides them when set.
type Options struct {
	WinBackDays      int
	AnniversaryYears int
}

func DefaultOptions() Options {
	return Options{WinBackDays: DefaultWinBackDays, AnniversaryYears: DefaultAnniversaryYears}
}

// Evaluator decides eligibility for one trigger type.
type Evaluator interface {
	Type() model.TriggerType
	Eligible(c model.CustomerSnapshot, today time.Time) bool
	// FiringDate is the date component of the execution idempotency key.
	FiringDate(c model.CustomerSnapshot, today time.Time) time.Time
	// Variables returns trigger-specific template variables for lang.
	Variables(c model.CustomerSnapshot, today time.Time, lang string) map[string]string
}

// New builds the evaluator for a campaign. Unknown trigger types and
// unknown seasonal occasions are errors; callers skip the campaign.
func New(c *model.Campaign, opts Options) (Evaluator, error) {
	switch c.TriggerType {
	case model.TriggerBirthday:
		return Birthday{}, nil
	case model.TriggerAnniversary:
		years := opts.AnniversaryYears
		if c.TriggerValue.AnniversaryYears > 0 {
			years = c.TriggerValue.AnniversaryYears
		}
		if years <= 0 {
			years = DefaultAnniversaryYears
		}
		return Anniversary{Years: years}, nil
	case model.TriggerWinBack:
		days := opts.WinBackDays
		if c.TriggerValue.InactivityDays > 0 {
			days = c.TriggerValue.InactivityDays
		}
		if days <= 0 {
			days = DefaultWinBackDays
		}
		return WinBack{InactivityDays: days}, nil
	case model.TriggerSeasonal:
		occ, ok := LookupOccasion(c.TriggerValue.EventType)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownOccasion, c.TriggerValue.EventType)
		}
		return Seasonal{Occasion: occ}, nil
	}
	return nil, fmt.Errorf("%w: %q", appErrors.ErrUnknownTrigger, c.TriggerType)
}

// EligibleCustomers returns the subset of customers ev fires for today.
func EligibleCustomers(ev Evaluator, customers []model.CustomerSnapshot, today time.Time) []model.CustomerSnapshot {
	out := make([]model.CustomerSnapshot, 0)
	for _, c := range customers {
		if ev.Eligible(c, today) {
			out = append(out, c)
		}
	}
	return out
}

// Localize moves the customers' recorded instants into loc so that their
// calendar dates match the business-local today. DateOfBirth is a date, not
// an instant, and is left alone.
func Localize(customers []model.CustomerSnapshot, loc *time.Location) []model.CustomerSnapshot {
	if loc == nil {
		return customers
	}
	out := make([]model.CustomerSnapshot, len(customers))
	for i, c := range customers {
		if !c.CreatedAt.IsZero() {
			c.CreatedAt = c.CreatedAt.In(loc)
		}
		if !c.LastInteractionAt.IsZero() {
			c.LastInteractionAt = c.LastInteractionAt.In(loc)
		}
		if c.LastOrderAt != nil {
			c.LastOrderAt = ptrTime(c.LastOrderAt.In(loc))
		}
		out[i] = c
	}
	return out
}

func ptrTime(t time.Time) *time.Time { return &t }

// Birthday fires when the birth month and day equal today's. The year is ignored.
type Birthday struct{}

func (Birthday) Type() model.TriggerType { return model.TriggerBirthday }

func (Birthday) Eligible(c model.CustomerSnapshot, today time.Time) bool {
	if c.DateOfBirth == nil {
		return false
	}
	return sameMonthDay(*c.DateOfBirth, today)
}

func (Birthday) FiringDate(_ model.CustomerSnapshot, today time.Time) time.Time {
	return calendarDate(today)
}

func (Birthday) Variables(c model.CustomerSnapshot, _ time.Time, _ string) map[string]string {
	return map[string]string{"loyaltyPoints": strconv.Itoa(c.LoyaltyPoints)}
}

// Anniversary fires on the exact calendar date Years after account creation.
type Anniversary struct {
	Years int
}

func (Anniversary) Type() model.TriggerType { return model.TriggerAnniversary }

func (a Anniversary) Eligible(c model.CustomerSnapshot, today time.Time) bool {
	if c.CreatedAt.IsZero() {
		return false
	}
	return c.CreatedAt.Year()+a.Years == today.Year() && sameMonthDay(c.CreatedAt, today)
}

func (Anniversary) FiringDate(_ model.CustomerSnapshot, today time.Time) time.Time {
	return calendarDate(today)
}

func (a Anniversary) Variables(model.CustomerSnapshot, time.Time, string) map[string]string {
	return map[string]string{"years": strconv.Itoa(a.Years)}
}

// WinBack fires for customers whose last interaction and last order are
// both older than InactivityDays. Customers who never ordered never match.
type WinBack struct {
	InactivityDays int
}

func (WinBack) Type() model.TriggerType { return model.TriggerWinBack }

func (w WinBack) Eligible(c model.CustomerSnapshot, today time.Time) bool {
	if c.LastOrderAt == nil {
		return false
	}
	return daysBetween(c.LastInteractionAt, today) > w.InactivityDays &&
		daysBetween(*c.LastOrderAt, today) > w.InactivityDays
}

// FiringDate anchors on the last interaction so one inactivity episode
// produces one message, however many daily runs observe it.
func (WinBack) FiringDate(c model.CustomerSnapshot, _ time.Time) time.Time {
	return calendarDate(c.LastInteractionAt)
}

func (WinBack) Variables(c model.CustomerSnapshot, today time.Time, _ string) map[string]string {
	vars := map[string]string{"daysInactive": strconv.Itoa(daysBetween(c.LastInteractionAt, today))}
	if c.LastOrderAt != nil {
		vars["daysSinceLastOrder"] = strconv.Itoa(daysBetween(*c.LastOrderAt, today))
	}
	return vars
}

// Seasonal fires for everyone while today is inside the occasion's window.
type Seasonal struct {
	Occasion Occasion
}

func (Seasonal) Type() model.TriggerType { return model.TriggerSeasonal }

func (s Seasonal) Eligible(_ model.CustomerSnapshot, today time.Time) bool {
	return s.Occasion.Contains(today)
}

// FiringDate is the first day of the current window occurrence.
func (s Seasonal) FiringDate(_ model.CustomerSnapshot, today time.Time) time.Time {
	return s.Occasion.OccurrenceStart(today)
}

func (s Seasonal) Variables(_ model.CustomerSnapshot, _ time.Time, lang string) map[string]string {
	return map[string]string{"occasion": s.Occasion.Name.For(lang)}
}

func sameMonthDay(a, b time.Time) bool {
	return a.Month() == b.Month() && a.Day() == b.Day()
}

// calendarDate drops the clock and zone, keeping the wall-clock date.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts calendar days from a to b using each value's own wall-clock date.
func daysBetween(a, b time.Time) int {
	return int(calendarDate(b).Sub(calendarDate(a)).Hours() / 24)
}
