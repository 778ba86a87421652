package trigger

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/unclebandit/oudcrm-automation/internal/model"
)

var ErrUnknownOccasion = errors.New("unknown seasonal occasion")

// MonthDay is a calendar date without a year.
type MonthDay struct {
	Month time.Month
	Day   int
}

func (md MonthDay) in(year int) time.Time {
	return time.Date(year, md.Month, md.Day, 0, 0, 0, 0, time.UTC)
}

// Occasion is a named, yearly-recurring calendar window. From == To is a
// single fixed date; From after To wraps over the new year.
type Occasion struct {
	Key  string
	Name model.Bilingual
	From MonthDay
	To   MonthDay
}

// Contains reports whether today's calendar date lies inside the window.
func (o Occasion) Contains(today time.Time) bool {
	d := calendarDate(today)
	from, to := o.From.in(d.Year()), o.To.in(d.Year())
	if !from.After(to) {
		return !d.Before(from) && !d.After(to)
	}
	return !d.Before(from) || !d.After(to)
}

// OccurrenceStart returns the start of the window occurrence containing today.
func (o Occasion) OccurrenceStart(today time.Time) time.Time {
	d := calendarDate(today)
	from, to := o.From.in(d.Year()), o.To.in(d.Year())
	if from.After(to) && !d.After(to) {
		return o.From.in(d.Year() - 1)
	}
	return from
}

// The Islamic occasions are fixed Gregorian windows. They drift by about
// eleven days a year against the lunar calendar and have to be maintained
// by hand until a Hijri calculation is introduced.
var occasions = map[string]Occasion{
	"ramadan": {
		Key:  "ramadan",
		Name: model.Bilingual{En: "Ramadan", Ar: "رمضان"},
		From: MonthDay{time.March, 1}, To: MonthDay{time.April, 30},
	},
	"eid_al_fitr": {
		Key:  "eid_al_fitr",
		Name: model.Bilingual{En: "Eid al-Fitr", Ar: "عيد الفطر"},
		From: MonthDay{time.April, 10}, To: MonthDay{time.April, 10},
	},
	"eid_al_adha": {
		Key:  "eid_al_adha",
		Name: model.Bilingual{En: "Eid al-Adha", Ar: "عيد الأضحى"},
		From: MonthDay{time.June, 16}, To: MonthDay{time.June, 16},
	},
	"national_day": {
		Key:  "national_day",
		Name: model.Bilingual{En: "National Day", Ar: "اليوم الوطني"},
		From: MonthDay{time.December, 2}, To: MonthDay{time.December, 2},
	},
	"new_year": {
		Key:  "new_year",
		Name: model.Bilingual{En: "New Year", Ar: "رأس السنة"},
		From: MonthDay{time.January, 1}, To: MonthDay{time.January, 1},
	},
	"mothers_day": {
		Key:  "mothers_day",
		Name: model.Bilingual{En: "Mother's Day", Ar: "عيد الأم"},
		From: MonthDay{time.March, 21}, To: MonthDay{time.March, 21},
	},
	"valentines": {
		Key:  "valentines",
		Name: model.Bilingual{En: "Valentine's Day", Ar: "عيد الحب"},
		From: MonthDay{time.February, 14}, To: MonthDay{time.February, 14},
	},
	"summer_sale": {
		Key:  "summer_sale",
		Name: model.Bilingual{En: "Summer Sale", Ar: "تخفيضات الصيف"},
		From: MonthDay{time.July, 1}, To: MonthDay{time.August, 31},
	},
	"shopping_festival": {
		Key:  "shopping_festival",
		Name: model.Bilingual{En: "Shopping Festival", Ar: "مهرجان التسوق"},
		From: MonthDay{time.December, 15}, To: MonthDay{time.January, 29},
	},
}

// LookupOccasion finds an occasion by key, case-insensitively.
func LookupOccasion(key string) (Occasion, bool) {
	o, ok := occasions[strings.ToLower(strings.TrimSpace(key))]
	return o, ok
}

// Occasions lists the known occasion keys in sorted order.
func Occasions() []string {
	keys := make([]string, 0, len(occasions))
	for k := range occasions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
