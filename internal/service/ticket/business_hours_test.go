package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eonpro/ops-api/internal/model"
)

func weekdayHours(open, close int) []*model.BusinessHours {
	var hours []*model.BusinessHours
	for wd := time.Monday; wd <= time.Friday; wd++ {
		hours = append(hours, &model.BusinessHours{Weekday: wd, OpenMins: open, CloseMins: close})
	}
	return hours
}

func TestAddBusinessMinutesSpillsToNextDay(t *testing.T) {
	sched := NewSchedule(weekdayHours(9*60, 17*60), nil)

	// Monday 16:00 + 480 business minutes: 60 left today, 420 tomorrow.
	start := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	due := sched.AddBusinessMinutes(start, 480)
	assert.Equal(t, time.Date(2026, 3, 3, 16, 0, 0, 0, time.UTC), due)
}

func TestAddBusinessMinutesWithinDay(t *testing.T) {
	sched := NewSchedule(weekdayHours(9*60, 17*60), nil)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	due := sched.AddBusinessMinutes(start, 120)
	assert.Equal(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), due)
}

func TestAddBusinessMinutesSkipsWeekend(t *testing.T) {
	sched := NewSchedule(weekdayHours(9*60, 17*60), nil)

	// Friday 16:30 + 60 business minutes lands Monday 09:30.
	start := time.Date(2026, 3, 6, 16, 30, 0, 0, time.UTC)
	due := sched.AddBusinessMinutes(start, 60)
	assert.Equal(t, time.Date(2026, 3, 9, 9, 30, 0, 0, time.UTC), due)
}

func TestAddBusinessMinutesSkipsHoliday(t *testing.T) {
	holidays := []*model.Holiday{
		{Date: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), Name: "Clinic Day"},
	}
	sched := NewSchedule(weekdayHours(9*60, 17*60), holidays)

	// Monday 16:00 + 120: 60 Monday, Tuesday is a holiday, 60 Wednesday.
	start := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	due := sched.AddBusinessMinutes(start, 120)
	assert.Equal(t, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), due)
}

func TestAddBusinessMinutesBeforeOpen(t *testing.T) {
	sched := NewSchedule(weekdayHours(9*60, 17*60), nil)

	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	due := sched.AddBusinessMinutes(start, 30)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), due)
}

func TestAddBusinessMinutesEmptyScheduleIsWallClock(t *testing.T) {
	sched := NewSchedule(nil, nil)

	start := time.Date(2026, 3, 7, 3, 0, 0, 0, time.UTC)
	due := sched.AddBusinessMinutes(start, 90)
	assert.Equal(t, start.Add(90*time.Minute), due)
}
