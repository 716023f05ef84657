package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolvePeriod(t *testing.T) {
	tests := []struct {
		token string
		start time.Time
		end   time.Time
	}{
		{PeriodToday, date(2024, 3, 15), date(2024, 3, 16)},
		{PeriodYesterday, date(2024, 3, 14), date(2024, 3, 15)},
		{Period7Days, date(2024, 3, 9), date(2024, 3, 16)},
		{Period30Days, date(2024, 2, 15), date(2024, 3, 16)},
		{"  7DAYS ", date(2024, 3, 9), date(2024, 3, 16)},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			r, err := ResolvePeriod(tt.token, now, "", "")
			require.NoError(t, err)
			assert.Equal(t, tt.start, r.Start)
			assert.Equal(t, tt.end, r.End)
		})
	}
}

func TestResolvePeriodUsesUTC(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	// 00:30 in Paris is still the previous day in UTC
	local := time.Date(2024, 3, 16, 0, 30, 0, 0, paris)

	r, err := ResolvePeriod(PeriodToday, local, "", "")
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 15), r.Start)
}

func TestCustomPeriodIncludesEndDate(t *testing.T) {
	r, err := ResolvePeriod(PeriodCustom, now, "2024-01-01", "2024-01-31")
	require.NoError(t, err)

	assert.True(t, r.Contains(date(2024, 1, 1)))
	assert.True(t, r.Contains(time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)))
	assert.False(t, r.Contains(date(2024, 2, 1)))
	assert.False(t, r.Contains(time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)))
	assert.Len(t, r.Days(), 31)
}

func TestResolvePeriodErrors(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		start, end string
	}{
		{"unknown token", "fortnight", "", ""},
		{"custom without bounds", PeriodCustom, "", ""},
		{"malformed start", PeriodCustom, "01/01/2024", "2024-01-31"},
		{"malformed end", PeriodCustom, "2024-01-01", "31"},
		{"end before start", PeriodCustom, "2024-02-01", "2024-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolvePeriod(tt.token, now, tt.start, tt.end)
			assert.ErrorIs(t, err, ErrInvalidPeriod)
		})
	}
}

func TestPreviousRange(t *testing.T) {
	r, err := ResolvePeriod(Period7Days, now, "", "")
	require.NoError(t, err)

	prev := r.Previous()
	assert.Equal(t, date(2024, 3, 2), prev.Start)
	assert.Equal(t, r.Start, prev.End)
	assert.Equal(t, r.Duration(), prev.Duration())
}
