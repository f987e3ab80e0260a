package bookings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// rng builds a Range from clock strings to keep the cases readable.
func rng(start, end int) Range { return Range{Start: start, End: end} }

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name   string
		a, b   Range
		expect bool
	}{
		{"disjoint", rng(540, 600), rng(660, 720), false},
		{"back to back does not overlap", rng(540, 600), rng(600, 660), false},
		{"partial overlap", rng(540, 600), rng(570, 630), true},
		{"identical ranges", rng(540, 600), rng(540, 600), true},
		{"containment", rng(540, 720), rng(570, 600), true},
		{"one minute shared", rng(540, 601), rng(600, 660), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Overlaps(tt.a, tt.b))
			assert.Equal(t, tt.expect, Overlaps(tt.b, tt.a), "overlap must be symmetric")
		})
	}
}

func TestCheckOverlapExclusiveResource(t *testing.T) {
	// maxConcurrent = 1: any overlap is a hard conflict, never a warning.
	existing := []Range{rng(540, 600)}

	assert.Equal(t, VerdictTaken, CheckOverlap(rng(570, 630), existing, 1))
	assert.Equal(t, VerdictTaken, CheckOverlap(rng(540, 600), existing, 1))
	assert.Equal(t, VerdictClear, CheckOverlap(rng(600, 660), existing, 1))
	assert.Equal(t, VerdictClear, CheckOverlap(rng(480, 540), existing, 1))
}

func TestCheckOverlapSharedCapacity(t *testing.T) {
	// A room with 3 seats: the 2nd and 3rd concurrent bookings warn, the
	// 4th is refused.
	var existing []Range

	assert.Equal(t, VerdictClear, CheckOverlap(rng(540, 600), existing, 3))
	existing = append(existing, rng(540, 600))

	assert.Equal(t, VerdictWarning, CheckOverlap(rng(540, 600), existing, 3))
	existing = append(existing, rng(540, 600))

	assert.Equal(t, VerdictWarning, CheckOverlap(rng(540, 600), existing, 3))
	existing = append(existing, rng(540, 600))

	assert.Equal(t, VerdictTaken, CheckOverlap(rng(540, 600), existing, 3))
}

func TestCheckOverlapStaggered(t *testing.T) {
	// Overlaps exist pairwise but never three at once: fits in capacity 2.
	existing := []Range{rng(540, 600), rng(590, 650)}

	assert.Equal(t, VerdictWarning, CheckOverlap(rng(595, 620), existing, 3))
	assert.Equal(t, VerdictTaken, CheckOverlap(rng(595, 620), existing, 2))

	// Candidate only overlaps the second booking; peak concurrency is 2.
	assert.Equal(t, VerdictWarning, CheckOverlap(rng(610, 660), existing, 2))
}

func TestCheckOverlapPeakInsideCandidate(t *testing.T) {
	// The overload happens in the middle of the candidate window, not at
	// its start.
	existing := []Range{rng(570, 630), rng(570, 630)}

	assert.Equal(t, VerdictTaken, CheckOverlap(rng(540, 660), existing, 2))
	assert.Equal(t, VerdictWarning, CheckOverlap(rng(540, 660), existing, 3))
}

func TestCheckOverlapZeroCapacity(t *testing.T) {
	// Capacity below 1 is treated as 1.
	assert.Equal(t, VerdictTaken, CheckOverlap(rng(540, 600), []Range{rng(540, 600)}, 0))
	assert.Equal(t, VerdictClear, CheckOverlap(rng(540, 600), nil, 0))
}
