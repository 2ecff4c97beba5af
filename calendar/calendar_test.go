package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestAdjust_ModifiedFollowing(t *testing.T) {
	t.Parallel()

	cal := New("TEST", []time.Time{d(2025, 12, 31)})

	// Saturday 2025-05-31 rolls back into May.
	assert.True(t, cal.Adjust(d(2025, 5, 31)).Equal(d(2025, 5, 30)))
	// Saturday 2025-03-01 rolls forward to Monday.
	assert.True(t, cal.Adjust(d(2025, 3, 1)).Equal(d(2025, 3, 3)))
	// Holiday on 2025-12-31 (Wednesday) rolls back to Tuesday.
	assert.True(t, cal.Adjust(d(2025, 12, 31)).Equal(d(2025, 12, 30)))
}

func TestAddBusinessDays(t *testing.T) {
	t.Parallel()

	cal := WeekendsOnly()
	assert.True(t, cal.AddBusinessDays(d(2025, 5, 30), 1).Equal(d(2025, 6, 2)))
	assert.True(t, cal.AddBusinessDays(d(2025, 6, 2), -1).Equal(d(2025, 5, 30)))
}

func TestNilCalendarHasNoHolidays(t *testing.T) {
	t.Parallel()

	var cal *Calendar
	assert.True(t, cal.IsBusinessDay(d(2025, 12, 31)))
}
