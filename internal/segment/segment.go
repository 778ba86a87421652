// Package segment evaluates customers against a campaign's segment filter.
//
// The filter is a plain conjunction over four dimensions. There is no OR and
// no nesting; an unset dimension is always satisfied.
package segment

import (
	"strings"

	"github.com/unclebandit/oudcrm-automation/internal/model"
)

// Matches reports whether c satisfies every configured dimension of f.
// A nil or empty filter matches every customer.
func Matches(c model.CustomerSnapshot, f *model.SegmentFilter) bool {
	if f == nil {
		return true
	}
	if len(f.Segments) > 0 && !contains(f.Segments, c.Segment) {
		return false
	}
	if f.MinLifetimeValue != nil && c.LifetimeValue < *f.MinLifetimeValue {
		return false
	}
	if f.MaxLifetimeValue != nil && c.LifetimeValue > *f.MaxLifetimeValue {
		return false
	}
	// Customers without a loyalty account are not constrained by tier.
	if len(f.LoyaltyTiers) > 0 && c.LoyaltyTier != nil && !contains(f.LoyaltyTiers, *c.LoyaltyTier) {
		return false
	}
	if len(f.Regions) > 0 && !contains(f.Regions, c.Region) {
		return false
	}
	return true
}

// Filter returns the customers that match f, preserving order.
func Filter(customers []model.CustomerSnapshot, f *model.SegmentFilter) []model.CustomerSnapshot {
	out := make([]model.CustomerSnapshot, 0, len(customers))
	for _, c := range customers {
		if Matches(c, f) {
			out = append(out, c)
		}
	}
	return out
}

// IsEmpty is true when no dimension is configured.
func IsEmpty(f *model.SegmentFilter) bool {
	return f == nil || (len(f.Segments) == 0 && f.MinLifetimeValue == nil && f.MaxLifetimeValue == nil &&
		len(f.LoyaltyTiers) == 0 && len(f.Regions) == 0)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
