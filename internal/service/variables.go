package service

import (
	"maps"
	"strconv"
	"time"

	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/trigger"
)

// MessageVariables builds the placeholder values for one language variant.
// Trigger variables override the customer fields of the same name. ev may
// be nil for campaigns without an automated trigger.
func MessageVariables(c *model.Campaign, cust model.CustomerSnapshot, ev trigger.Evaluator, today time.Time, lang string) map[string]string {
	vars := map[string]string{
		"customerName":  cust.Name,
		"firstName":     cust.FirstName(),
		"loyaltyPoints": strconv.Itoa(cust.LoyaltyPoints),
		"segment":       cust.Segment,
		"region":        cust.Region,
		"campaignName":  c.Name,
	}
	if cust.LoyaltyTier != nil {
		vars["loyaltyTier"] = *cust.LoyaltyTier
	}
	if c.TriggerValue.DiscountCode != "" {
		vars["discountCode"] = c.TriggerValue.DiscountCode
	}
	if ev != nil {
		maps.Copy(vars, ev.Variables(cust, today, lang))
	}
	return vars
}

// renderMessage renders subject and content in both languages, each with
// its own variables, and returns the variant for the customer's language.
func renderMessage(c *model.Campaign, cust model.CustomerSnapshot, ev trigger.Evaluator, today time.Time) (subject, body model.Bilingual) {
	en := MessageVariables(c, cust, ev, today, model.LanguageEnglish)
	ar := MessageVariables(c, cust, ev, today, model.LanguageArabic)
	return RenderBilingual(c.Subject, en, ar), RenderBilingual(c.Content, en, ar)
}
