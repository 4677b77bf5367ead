package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCalendar(t *testing.T) *USEquity {
	t.Helper()
	c, err := NewUSEquity()
	require.NoError(t, err)
	return c
}

func TestPreviousTradingDay_SaturdayNoonIsFriday(t *testing.T) {
	c := mustCalendar(t)

	// 2025-06-14 is a Saturday.
	sat := time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)
	prev := c.PreviousTradingDay(sat)

	assert.Equal(t, time.Friday, prev.Weekday())
	assert.Equal(t, 13, prev.Day())
	assert.Equal(t, 0, prev.Hour(), "date-only result")
}

func TestPreviousTradingDay_SundayAndMondaySkipWeekend(t *testing.T) {
	c := mustCalendar(t)

	sun := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Friday, c.PreviousTradingDay(sun).Weekday())

	mon := time.Date(2025, 6, 16, 14, 0, 0, 0, time.UTC)
	prev := c.PreviousTradingDay(mon)
	assert.Equal(t, time.Friday, prev.Weekday())
	assert.Equal(t, 13, prev.Day())
}

func TestPreviousTradingDay_MidweekIsYesterday(t *testing.T) {
	c := mustCalendar(t)

	// 2025-06-18 is a Wednesday.
	wed := time.Date(2025, 6, 18, 18, 0, 0, 0, time.UTC)
	prev := c.PreviousTradingDay(wed)
	assert.Equal(t, time.Tuesday, prev.Weekday())
	assert.Equal(t, 17, prev.Day())
}

func TestIsOpen_RegularHours(t *testing.T) {
	c := mustCalendar(t)
	ny := c.Location()

	cases := []struct {
		name string
		ts   time.Time
		open bool
	}{
		{"mid-session Tuesday", time.Date(2025, 6, 17, 11, 0, 0, 0, ny), true},
		{"at the open", time.Date(2025, 6, 17, 9, 30, 0, 0, ny), true},
		{"before the open", time.Date(2025, 6, 17, 9, 15, 0, 0, ny), false},
		{"at the close", time.Date(2025, 6, 17, 16, 0, 0, 0, ny), false},
		{"Saturday", time.Date(2025, 6, 14, 11, 0, 0, 0, ny), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.open, c.IsOpen(tc.ts))
		})
	}
}

func TestLastClose_WeekendPointsAtFriday(t *testing.T) {
	c := mustCalendar(t)

	sun := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	close := c.LastClose(sun)

	assert.Equal(t, time.Friday, close.Weekday())
	assert.Equal(t, 16, close.In(c.Location()).Hour())
	assert.Equal(t, 13, close.In(c.Location()).Day())
}

func TestLastClose_BeforeTodaysClose(t *testing.T) {
	c := mustCalendar(t)
	ny := c.Location()

	// Wednesday 10:00 ET: last close is Tuesday's.
	wed := time.Date(2025, 6, 18, 10, 0, 0, 0, ny)
	close := c.LastClose(wed)
	assert.Equal(t, time.Tuesday, close.Weekday())

	// Wednesday 17:00 ET: today's close qualifies.
	eve := time.Date(2025, 6, 18, 17, 0, 0, 0, ny)
	assert.Equal(t, time.Wednesday, c.LastClose(eve).Weekday())
}
