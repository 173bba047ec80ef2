package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2001-02-03")
	require.NoError(t, err)
	assert.Equal(t, Date(2001, time.February, 3), d)

	_, err = ParseDate("03/02/2001")
	assert.Error(t, err)

	_, err = ParseDate("2001-02-30")
	assert.Error(t, err)
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, time.January, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, time.January, 3, 1, 0, 0, 0, time.UTC)

	assert.Equal(t, 2, DaysBetween(a, b))
	assert.Equal(t, -2, DaysBetween(b, a))
}

func TestApproxYears(t *testing.T) {
	today := Date(2026, time.October, 18)

	tests := []struct {
		name string
		days int
		want int
	}{
		{"exactly 18 x 365 days", 18 * 365, 18},
		{"one day short", 18*365 - 1, 17},
		{"zero", 0, 0},
		{"leap days are not counted", 366, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApproxYears(today.AddDate(0, 0, -tt.days), today))
		})
	}
}

func TestFixedClock(t *testing.T) {
	at := Date(2020, time.May, 5)
	clock := FixedClock(at)
	assert.Equal(t, at, clock())
	assert.Equal(t, 2020, CurrentYear(clock))
}

func TestFormatDateTimeStr(t *testing.T) {
	ts := time.Date(2025, time.March, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "2025-03-04 05:06:07", FormatDateTimeStr(ts))
	assert.Equal(t, "2025-03-04", FormatDateStr(ts))
}
