package db

import (
	"context"
	"fmt"
	"time"

	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/repository"
)

// DemoCustomers returns a small customer base. Interaction dates are
// relative to now so win-back and anniversary campaigns have someone to
// fire for.
func DemoCustomers(now time.Time) []model.CustomerSnapshot {
	day := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &t
	}
	ago := func(days int) time.Time { return now.AddDate(0, 0, -days) }
	tier := func(s string) *string { return &s }

	return []model.CustomerSnapshot{
		{
			Name: "Ahmed Al Mansoori", Phone: "0501234567", Email: "ahmed@example.ae",
			PreferredLanguage: "ar", DateOfBirth: day(1985, now.Month(), now.Day()),
			CreatedAt: ago(365), LastInteractionAt: ago(3), LastOrderAt: ptrTime(ago(10)),
			Segment: "VIP", LifetimeValue: 18500, LoyaltyTier: tier("Gold"), LoyaltyPoints: 4200, Region: "Dubai",
		},
		{
			Name: "Sara Khan", Phone: "+971 55 765 4321", Email: "sara.k@example.com",
			PreferredLanguage: "en", DateOfBirth: day(1992, time.July, 4),
			CreatedAt: ago(400), LastInteractionAt: ago(120), LastOrderAt: ptrTime(ago(130)),
			Segment: "Regular", LifetimeValue: 2400, LoyaltyTier: tier("Silver"), LoyaltyPoints: 600, Region: "Sharjah",
		},
		{
			Name: "Fatima Al Zaabi", Phone: "00971521112233",
			PreferredLanguage: "ar", DateOfBirth: day(1990, time.February, 29),
			CreatedAt: ago(30), LastInteractionAt: ago(1),
			Segment: "New", LifetimeValue: 350, LoyaltyPoints: 35, Region: "Abu Dhabi",
		},
		{
			Name: "Omar Haddad", Email: "omar.haddad@example.com",
			PreferredLanguage: "en", DateOfBirth: day(1979, time.December, 2),
			CreatedAt: ago(730), LastInteractionAt: ago(200), LastOrderAt: ptrTime(ago(210)),
			Segment: "VIP", LifetimeValue: 32000, LoyaltyTier: tier("Platinum"), LoyaltyPoints: 9100, Region: "Dubai",
		},
		{
			Name: "Layla Hassan", Phone: "0564445566", Email: "layla@example.ae",
			PreferredLanguage: "en",
			CreatedAt: ago(365), LastInteractionAt: ago(95), LastOrderAt: ptrTime(ago(95)),
			Segment: "Regular", LifetimeValue: 4100, LoyaltyTier: tier("Silver"), LoyaltyPoints: 1100, Region: "Abu Dhabi",
		},
		{
			Name: "Yousef Saleh", Phone: "0509876543",
			PreferredLanguage: "ar", DateOfBirth: day(2000, time.March, 21),
			CreatedAt: ago(60), LastInteractionAt: ago(100),
			Segment: "New", LifetimeValue: 0, Region: "Ajman",
		},
	}
}

// DemoCampaigns returns one running campaign per trigger type plus a
// draft manual campaign.
func DemoCampaigns() []model.Campaign {
	vipOnly := &model.SegmentFilter{Segments: []string{"VIP"}}
	return []model.Campaign{
		{
			Name: "Birthday greetings", Type: model.CampaignTypeSMS, TriggerType: model.TriggerBirthday, Status: model.CampaignRunning,
			Content: model.Bilingual{
				En: "Happy Birthday {{firstName}}! Enjoy 20% off with code {{discountCode}}.",
				Ar: "عيد ميلاد سعيد {{firstName}}! استمتع بخصم 20% مع الرمز {{discountCode}}.",
			},
			TriggerValue: model.TriggerValue{DiscountCode: "BDAY20"},
			SenderID:     "OudHouse",
		},
		{
			Name: "Membership anniversary", Type: model.CampaignTypeWhatsApp, TriggerType: model.TriggerAnniversary, Status: model.CampaignRunning,
			Content: model.Bilingual{
				En: "{{firstName}}, thank you for {{years}} year(s) with us. You have {{loyaltyPoints}} points.",
				Ar: "{{firstName}}، شكراً لك على {{years}} سنة معنا. لديك {{loyaltyPoints}} نقطة.",
			},
			TriggerValue: model.TriggerValue{AnniversaryYears: 1, WhatsAppTemplate: "anniversary_v1"},
		},
		{
			Name: "We miss you", Type: model.CampaignTypeMixed, TriggerType: model.TriggerWinBack, Status: model.CampaignRunning,
			Subject: model.Bilingual{En: "We miss you, {{firstName}}", Ar: "اشتقنا إليك {{firstName}}"},
			Content: model.Bilingual{
				En: "It has been {{daysInactive}} days. Come back for 15% off with {{discountCode}}.",
				Ar: "مرت {{daysInactive}} يوماً. عد إلينا واحصل على خصم 15% مع {{discountCode}}.",
			},
			TriggerValue: model.TriggerValue{InactivityDays: 90, DiscountCode: "COMEBACK15"},
		},
		{
			Name: "National Day VIP", Type: model.CampaignTypeEmail, TriggerType: model.TriggerSeasonal, Status: model.CampaignRunning,
			SegmentFilter: vipOnly,
			Subject:       model.Bilingual{En: "Happy {{occasion}}", Ar: "{{occasion}} سعيد"},
			Content: model.Bilingual{
				En: "Dear {{customerName}}, celebrate {{occasion}} with an exclusive {{loyaltyTier}} gift.",
				Ar: "عزيزي {{customerName}}، احتفل بـ{{occasion}} مع هدية حصرية.",
			},
			TriggerValue: model.TriggerValue{EventType: "national_day"},
		},
		{
			Name: "Ramadan collection", Type: model.CampaignTypeWhatsApp, TriggerType: model.TriggerSeasonal, Status: model.CampaignPaused,
			Content: model.Bilingual{
				En: "{{occasion}} Kareem, {{firstName}}. Discover our new oud collection.",
				Ar: "{{occasion}} كريم {{firstName}}. اكتشف مجموعة العود الجديدة.",
			},
			TriggerValue: model.TriggerValue{EventType: "ramadan"},
		},
		{
			Name: "Store opening", Type: model.CampaignTypeSMS, TriggerType: model.TriggerNone, Status: model.CampaignDraft,
			Content: model.Bilingual{En: "Our new Abu Dhabi store opens this week!"},
		},
	}
}

// Seed inserts the demo customers and campaigns through the repositories.
func Seed(ctx context.Context, campaigns repository.CampaignRepositoryInterface, customers repository.CustomerRepositoryInterface, now time.Time) error {
	for _, c := range DemoCustomers(now) {
		if err := customers.Create(ctx, &c); err != nil {
			return fmt.Errorf("seed customer %q: %w", c.Name, err)
		}
	}
	for _, c := range DemoCampaigns() {
		if err := campaigns.Create(ctx, &c); err != nil {
			return fmt.Errorf("seed campaign %q: %w", c.Name, err)
		}
	}
	return nil
}

func ptrTime(t time.Time) *time.Time { return &t }
