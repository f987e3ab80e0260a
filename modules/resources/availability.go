package resources

import (
	"encoding/json"
	"fmt"
	"time"
)

// Weekday codes used in availability windows and recurrence rules, in
// schedule order (week starts Monday).
var weekdayCodes = []string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

var codeToWeekday = map[string]time.Weekday{
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
	"SU": time.Sunday,
}

// ParseWeekdayCode maps a two-letter weekday code to a time.Weekday.
func ParseWeekdayCode(code string) (time.Weekday, bool) {
	wd, ok := codeToWeekday[code]
	return wd, ok
}

// WeekdayCode is the inverse of ParseWeekdayCode.
func WeekdayCode(wd time.Weekday) string {
	for code, w := range codeToWeekday {
		if w == wd {
			return code
		}
	}
	return ""
}

// ParseClock parses a 24-hour "HH:MM" string into minutes since midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%q is not a HH:MM time", s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%q is not a HH:MM time", s)
		}
	}
	hh := int(s[0]-'0')*10 + int(s[1]-'0')
	mm := int(s[3]-'0')*10 + int(s[4]-'0')
	if hh > 23 || mm > 59 {
		return 0, fmt.Errorf("%q is out of range", s)
	}
	return hh*60 + mm, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// Window is a single bookable time window within a day.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Availability maps weekday codes to the windows during which a resource can
// be booked. An empty map means the resource is bookable around the clock;
// once any weekday is listed, unlisted weekdays are closed.
type Availability map[string][]Window

// ParseAvailability validates and decodes an availability document.
func ParseAvailability(raw []byte) (Availability, error) {
	a := Availability{}
	if len(raw) == 0 {
		return a, nil
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	for code, windows := range a {
		if _, ok := codeToWeekday[code]; !ok {
			return nil, fmt.Errorf("unknown weekday code %q", code)
		}
		for _, w := range windows {
			start, err := ParseClock(w.Start)
			if err != nil {
				return nil, err
			}
			end, err := ParseClock(w.End)
			if err != nil {
				return nil, err
			}
			if end <= start {
				return nil, fmt.Errorf("window %s-%s ends before it starts", w.Start, w.End)
			}
		}
	}
	return a, nil
}

// Covers returns true if the given time range falls entirely within one of
// the weekday's windows.
func (a Availability) Covers(wd time.Weekday, startMin, endMin int) bool {
	if len(a) == 0 {
		return true
	}
	for _, w := range a[WeekdayCode(wd)] {
		ws, err1 := ParseClock(w.Start)
		we, err2 := ParseClock(w.End)
		if err1 != nil || err2 != nil {
			continue
		}
		if startMin >= ws && endMin <= we {
			return true
		}
	}
	return false
}
