package series

import (
	"time"

	"github.com/TheLab-ms/bench/modules/bookings"
)

// Expand generates the full ordered list of instance dates for a rule. It is
// deterministic and side-effect free; the same rule always yields the same
// dates.
func Expand(rule *Rule) ([]string, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	start, _ := time.Parse(bookings.DateFormat, rule.StartDate)

	var until time.Time
	if rule.EndDate != "" {
		until, _ = time.Parse(bookings.DateFormat, rule.EndDate)
	}

	out := []string{}
	truncated := false
	// emit appends a date and reports whether expansion should continue.
	emit := func(d time.Time) bool {
		if rule.EndDate != "" && d.After(until) {
			return false
		}
		if len(out) >= maxInstances {
			truncated = true
			return false
		}
		out = append(out, d.Format(bookings.DateFormat))
		return rule.Count == 0 || len(out) < rule.Count
	}

	switch rule.Frequency {
	case FreqDaily:
		for d := start; emit(d); d = d.AddDate(0, 0, rule.interval()) {
		}

	case FreqWeekly:
		if len(rule.ByWeekday) == 0 {
			for d := start; emit(d); d = d.AddDate(0, 0, 7*rule.interval()) {
			}
			break
		}
		// Weeks are anchored at the start date. Within each week the rule's
		// weekdays are emitted in date order.
		set := rule.weekdaySet()
	weeks:
		for week := start; ; week = week.AddDate(0, 0, 7*rule.interval()) {
			for i := 0; i < 7; i++ {
				d := week.AddDate(0, 0, i)
				if !set[d.Weekday()] {
					continue
				}
				if !emit(d) {
					break weeks
				}
			}
			if rule.EndDate != "" && week.AddDate(0, 0, 7*rule.interval()).After(until) {
				break
			}
		}

	case FreqMonthly:
		day := start.Day()
		first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
		for i := 0; ; i += rule.interval() {
			month := first.AddDate(0, i, 0)
			d := month.AddDate(0, 0, day-1)
			// A short month past the end bound can't contribute an instance,
			// so it can't fail the expansion either.
			if rule.EndDate != "" && d.After(until) {
				break
			}
			if d.Month() != month.Month() {
				return nil, invalidRule("%s has no day %d", month.Format("2006-01"), day)
			}
			if !emit(d) {
				break
			}
		}
	}

	if truncated {
		return nil, invalidRule("the rule generates more than %d instances", maxInstances)
	}
	// e.g. a WEEKLY rule whose only weekday never occurs before endDate
	if len(out) == 0 {
		return nil, invalidRule("the rule generates no instances")
	}
	return out, nil
}
