package series

import (
	"testing"

	"github.com/TheLab-ms/bench/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandWeeklyByWeekday(t *testing.T) {
	rule := &Rule{
		Frequency: FreqWeekly,
		ByWeekday: []string{"MO", "WE", "FR"},
		StartDate: "2024-01-01", // a Monday
		EndDate:   "2024-01-12",
	}
	dates, err := Expand(rule)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-03", "2024-01-05", "2024-01-08", "2024-01-10", "2024-01-12"}, dates)
}

func TestExpandDailyWithInterval(t *testing.T) {
	rule := &Rule{Frequency: FreqDaily, Interval: 2, StartDate: "2024-03-01", Count: 3}
	dates, err := Expand(rule)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01", "2024-03-03", "2024-03-05"}, dates)
}

func TestExpandDeterministic(t *testing.T) {
	rule := &Rule{Frequency: FreqWeekly, ByWeekday: []string{"TU", "TH"}, StartDate: "2024-06-03", Count: 10}
	first, err := Expand(rule)
	require.NoError(t, err)
	second, err := Expand(rule)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExpandWeeklyDefaultsToStartWeekday(t *testing.T) {
	rule := &Rule{Frequency: FreqWeekly, StartDate: "2024-01-03", Count: 3} // a Wednesday
	dates, err := Expand(rule)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-03", "2024-01-10", "2024-01-17"}, dates)
}

func TestExpandWeeklyMidWeekStart(t *testing.T) {
	// Weeks anchor at the start date, so the Monday in the first block is
	// the one following the Wednesday start.
	rule := &Rule{Frequency: FreqWeekly, ByWeekday: []string{"MO", "WE"}, StartDate: "2024-01-03", Count: 4}
	dates, err := Expand(rule)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-03", "2024-01-08", "2024-01-10", "2024-01-15"}, dates)
}

func TestExpandMonthly(t *testing.T) {
	rule := &Rule{Frequency: FreqMonthly, StartDate: "2024-01-15", Count: 4}
	dates, err := Expand(rule)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-15", "2024-02-15", "2024-03-15", "2024-04-15"}, dates)
}

func TestExpandMonthlyDayOverflow(t *testing.T) {
	// A rule anchored on the 31st hits February. That's refused outright
	// instead of clamping or skipping, so the caller can pick a valid day.
	rule := &Rule{Frequency: FreqMonthly, StartDate: "2024-01-31", Count: 3}
	_, err := Expand(rule)
	apiErr := engine.AsAPIError(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, engine.CodeInvalidRecurrence, apiErr.Code)

	// Two instances stop before February and are fine.
	rule.Count = 1
	dates, err := Expand(rule)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-31"}, dates)
}

func TestExpandMonthlyOverflowPastEndDate(t *testing.T) {
	// The 31st exists in March but not April. With the range closed before
	// April, the short month never comes into play.
	rule := &Rule{Frequency: FreqMonthly, StartDate: "2024-03-31", EndDate: "2024-03-31"}
	dates, err := Expand(rule)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-31"}, dates)

	rule.EndDate = "2024-06-30"
	_, err = Expand(rule)
	apiErr := engine.AsAPIError(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, engine.CodeInvalidRecurrence, apiErr.Code)
}

func TestExpandNoInstances(t *testing.T) {
	// 2024-01-01 is a Monday, so the only Tuesday in range falls after
	// endDate and the rule produces nothing.
	rule := &Rule{Frequency: FreqWeekly, ByWeekday: []string{"TU"}, StartDate: "2024-01-01", EndDate: "2024-01-01"}
	_, err := Expand(rule)
	apiErr := engine.AsAPIError(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, engine.CodeInvalidRecurrence, apiErr.Code)
}

func TestExpandEndDateInclusive(t *testing.T) {
	rule := &Rule{Frequency: FreqDaily, StartDate: "2024-05-01", EndDate: "2024-05-03"}
	dates, err := Expand(rule)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-01", "2024-05-02", "2024-05-03"}, dates)
}

func TestExpandSingleDay(t *testing.T) {
	rule := &Rule{Frequency: FreqDaily, StartDate: "2024-05-01", EndDate: "2024-05-01"}
	dates, err := Expand(rule)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-01"}, dates)
}

func TestExpandInstanceCap(t *testing.T) {
	rule := &Rule{Frequency: FreqDaily, StartDate: "2024-01-01", EndDate: "2030-01-01"}
	_, err := Expand(rule)
	apiErr := engine.AsAPIError(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, engine.CodeInvalidRecurrence, apiErr.Code)
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		invalid bool
	}{
		{
			name: "valid daily",
			rule: Rule{Frequency: FreqDaily, StartDate: "2024-01-01", Count: 5},
		},
		{
			name:    "unknown frequency",
			rule:    Rule{Frequency: "HOURLY", StartDate: "2024-01-01", Count: 5},
			invalid: true,
		},
		{
			name:    "both bounds",
			rule:    Rule{Frequency: FreqDaily, StartDate: "2024-01-01", EndDate: "2024-02-01", Count: 5},
			invalid: true,
		},
		{
			name:    "no bound",
			rule:    Rule{Frequency: FreqDaily, StartDate: "2024-01-01"},
			invalid: true,
		},
		{
			name:    "negative interval",
			rule:    Rule{Frequency: FreqDaily, Interval: -1, StartDate: "2024-01-01", Count: 5},
			invalid: true,
		},
		{
			name:    "end before start",
			rule:    Rule{Frequency: FreqDaily, StartDate: "2024-02-01", EndDate: "2024-01-01"},
			invalid: true,
		},
		{
			name:    "bad start date",
			rule:    Rule{Frequency: FreqDaily, StartDate: "2024-13-01", Count: 5},
			invalid: true,
		},
		{
			name:    "byWeekday on daily rule",
			rule:    Rule{Frequency: FreqDaily, ByWeekday: []string{"MO"}, StartDate: "2024-01-01", Count: 5},
			invalid: true,
		},
		{
			name:    "unknown weekday code",
			rule:    Rule{Frequency: FreqWeekly, ByWeekday: []string{"XX"}, StartDate: "2024-01-01", Count: 5},
			invalid: true,
		},
		{
			name:    "duplicate weekday code",
			rule:    Rule{Frequency: FreqWeekly, ByWeekday: []string{"MO", "MO"}, StartDate: "2024-01-01", Count: 5},
			invalid: true,
		},
		{
			name:    "count over the cap",
			rule:    Rule{Frequency: FreqDaily, StartDate: "2024-01-01", Count: maxInstances + 1},
			invalid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if !tt.invalid {
				assert.NoError(t, err)
				return
			}
			apiErr := engine.AsAPIError(err)
			require.NotNil(t, apiErr)
			assert.Equal(t, engine.CodeInvalidRecurrence, apiErr.Code)
		})
	}
}
