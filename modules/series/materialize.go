package series

import (
	"context"
	"time"

	"github.com/TheLab-ms/bench/modules/bookings"
	"github.com/TheLab-ms/bench/modules/metrics"
)

// Skip records one instance date that was not materialized and why.
type Skip struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

const (
	skipSlotTaken   = "slot_taken"
	skipUnavailable = "unavailable"
)

// materialize creates one booking per candidate date, skipping dates where
// the resource is at capacity or closed. It runs against the caller's
// transaction so a failed batch leaves nothing behind.
func materialize(ctx context.Context, q bookings.Querier, s *Series, info *resourceInfo, dates []string) (created []string, skipped []Skip, err error) {
	rng := bookings.Range{Start: s.startMin, End: s.endMin}
	created, skipped = []string{}, []Skip{}

	for _, date := range dates {
		day, _ := time.Parse(bookings.DateFormat, date)
		if !info.Availability.Covers(day.Weekday(), rng.Start, rng.End) {
			skipped = append(skipped, Skip{Date: date, Reason: skipUnavailable})
			metrics.SeriesInstances.WithLabelValues("skipped").Inc()
			continue
		}

		existing, err := bookings.ActiveRanges(ctx, q, s.Resource, date, 0)
		if err != nil {
			return nil, nil, err
		}
		if bookings.CheckOverlap(rng, existing, info.MaxConcurrent) == bookings.VerdictTaken {
			skipped = append(skipped, Skip{Date: date, Reason: skipSlotTaken})
			metrics.SeriesInstances.WithLabelValues("skipped").Inc()
			continue
		}

		if _, _, err := bookings.Insert(ctx, q, s.Resource, s.Member, date, rng, s.Purpose, &s.ID); err != nil {
			return nil, nil, err
		}
		created = append(created, date)
		metrics.SeriesInstances.WithLabelValues("materialized").Inc()
	}
	return created, skipped, nil
}

// datesThrough filters expanded dates to those after `after` (exclusive) and
// up to `through` (inclusive). Empty `after` means no lower bound.
func datesThrough(dates []string, after, through string) []string {
	out := []string{}
	for _, d := range dates {
		if after != "" && d <= after {
			continue
		}
		if d > through {
			break
		}
		out = append(out, d)
	}
	return out
}
