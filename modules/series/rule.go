package series

import (
	"sort"
	"time"

	"github.com/TheLab-ms/bench/engine"
	"github.com/TheLab-ms/bench/modules/bookings"
	"github.com/TheLab-ms/bench/modules/resources"
)

// maxInstances caps how many bookings a single rule may generate. It bounds
// both storage growth and the cost of expanding a rule at request time.
const maxInstances = 366

const (
	FreqDaily   = "DAILY"
	FreqWeekly  = "WEEKLY"
	FreqMonthly = "MONTHLY"
)

// Rule describes a recurrence pattern. Exactly one of EndDate and Count
// bounds the series.
type Rule struct {
	Frequency string   `json:"frequency"`
	ByWeekday []string `json:"byWeekday,omitempty"`
	Interval  int      `json:"interval,omitempty"`
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate,omitempty"`
	Count     int      `json:"count,omitempty"`
}

func invalidRule(format string, args ...any) error {
	return engine.Invalid(engine.CodeInvalidRecurrence, format, args...)
}

// Validate checks the rule's internal consistency without expanding it.
func (r *Rule) Validate() error {
	switch r.Frequency {
	case FreqDaily, FreqWeekly, FreqMonthly:
	default:
		return invalidRule("frequency must be DAILY, WEEKLY, or MONTHLY")
	}
	if r.Interval < 0 {
		return invalidRule("interval must be a positive integer")
	}
	if (r.EndDate == "") == (r.Count == 0) {
		return invalidRule("exactly one of endDate and count must be set")
	}
	if r.Count < 0 || r.Count > maxInstances {
		return invalidRule("count must be between 1 and %d", maxInstances)
	}

	start, err := time.Parse(bookings.DateFormat, r.StartDate)
	if err != nil {
		return invalidRule("startDate %q is not a valid date", r.StartDate)
	}
	if r.EndDate != "" {
		end, err := time.Parse(bookings.DateFormat, r.EndDate)
		if err != nil {
			return invalidRule("endDate %q is not a valid date", r.EndDate)
		}
		if end.Before(start) {
			return invalidRule("endDate is before startDate")
		}
	}

	if len(r.ByWeekday) > 0 && r.Frequency != FreqWeekly {
		return invalidRule("byWeekday is only valid with a WEEKLY frequency")
	}
	seen := map[string]bool{}
	for _, code := range r.ByWeekday {
		if _, ok := resources.ParseWeekdayCode(code); !ok {
			return invalidRule("unknown weekday code %q", code)
		}
		if seen[code] {
			return invalidRule("weekday code %q is listed twice", code)
		}
		seen[code] = true
	}
	return nil
}

// interval returns the effective step, defaulting to 1.
func (r *Rule) interval() int {
	if r.Interval == 0 {
		return 1
	}
	return r.Interval
}

// weekdaySet returns the ByWeekday codes as a weekday set.
func (r *Rule) weekdaySet() map[time.Weekday]bool {
	set := map[time.Weekday]bool{}
	for _, code := range r.ByWeekday {
		wd, _ := resources.ParseWeekdayCode(code)
		set[wd] = true
	}
	return set
}

// normalizedWeekdays renders the weekday set back in schedule order, used to
// store a canonical form of the rule.
func (r *Rule) normalizedWeekdays() []string {
	out := append([]string(nil), r.ByWeekday...)
	order := map[string]int{"MO": 0, "TU": 1, "WE": 2, "TH": 3, "FR": 4, "SA": 5, "SU": 6}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}
