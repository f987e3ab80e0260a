package bookings

import (
	"time"

	"github.com/TheLab-ms/bench/engine"
	"github.com/TheLab-ms/bench/modules/resources"
)

// Range is a half-open [Start, End) time range in minutes since midnight.
type Range struct {
	Start int
	End   int
}

// DateFormat is the wire format for calendar dates.
const DateFormat = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string, rejecting impossible calendar dates.
func ParseDate(s string) (time.Time, error) {
	day, err := time.Parse(DateFormat, s)
	if err != nil {
		return time.Time{}, engine.Invalid(engine.CodeInvalidDate, "%q is not a valid calendar date", s)
	}
	return day, nil
}

// ValidateRange normalizes a proposed booking window. It has no side effects:
// the same inputs always produce the same result.
func ValidateRange(date, startTime, endTime string) (time.Time, Range, error) {
	day, err := ParseDate(date)
	if err != nil {
		return time.Time{}, Range{}, err
	}

	start, err := resources.ParseClock(startTime)
	if err != nil {
		return time.Time{}, Range{}, engine.Invalid(engine.CodeInvalidRange, "invalid start time: %s", err)
	}
	end, err := resources.ParseClock(endTime)
	if err != nil {
		return time.Time{}, Range{}, engine.Invalid(engine.CodeInvalidRange, "invalid end time: %s", err)
	}
	if end <= start {
		return time.Time{}, Range{}, engine.Invalid(engine.CodeInvalidRange, "end time %s must be after start time %s", endTime, startTime)
	}

	return day, Range{Start: start, End: end}, nil
}
