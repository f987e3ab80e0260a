package bookings

// Verdict is the outcome of checking a candidate range against the existing
// schedule of a resource.
type Verdict int

const (
	// VerdictClear means the candidate touches no existing booking.
	VerdictClear Verdict = iota

	// VerdictWarning means the candidate overlaps existing bookings but the
	// resource has seats left. The caller may confirm past this - it models
	// shared-capacity tools (a room with several seats) versus exclusive ones.
	VerdictWarning

	// VerdictTaken means the candidate would push some instant past the
	// resource's capacity.
	VerdictTaken
)

func (v Verdict) String() string {
	switch v {
	case VerdictWarning:
		return "warning"
	case VerdictTaken:
		return "taken"
	default:
		return "clear"
	}
}

// Overlaps returns true if two half-open ranges [s1,e1) and [s2,e2) intersect:
// s1 < e2 && s2 < e1. A booking ending at 10:00 does not conflict with one
// starting at 10:00.
func Overlaps(a, b Range) bool {
	return a.Start < b.End && b.Start < a.End
}

// CheckOverlap decides whether a candidate range fits into the existing
// non-cancelled bookings of a resource given its concurrency capacity.
//
// Concurrency peaks only at range starts, so it's enough to count actives at
// the candidate's start and at each existing start inside the candidate
// window. Identical ranges are plain full overlap, not a special case.
func CheckOverlap(candidate Range, existing []Range, maxConcurrent int) Verdict {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	overlapping := false
	points := []int{candidate.Start}
	for _, e := range existing {
		if !Overlaps(candidate, e) {
			continue
		}
		overlapping = true
		if e.Start > candidate.Start {
			points = append(points, e.Start)
		}
	}
	if !overlapping {
		return VerdictClear
	}

	for _, p := range points {
		concurrent := 1 // the candidate itself
		for _, e := range existing {
			if e.Start <= p && p < e.End {
				concurrent++
			}
		}
		if concurrent > maxConcurrent {
			return VerdictTaken
		}
	}

	return VerdictWarning
}
