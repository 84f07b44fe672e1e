package ticket

import (
	"time"

	"github.com/eonpro/ops-api/internal/model"
)

// Schedule is a clinic's weekly business calendar.
type Schedule struct {
	hours    map[time.Weekday][]interval
	holidays map[string]bool
}

type interval struct {
	openMins  int
	closeMins int
}

func NewSchedule(hours []*model.BusinessHours, holidays []*model.Holiday) *Schedule {
	s := &Schedule{
		hours:    make(map[time.Weekday][]interval),
		holidays: make(map[string]bool),
	}
	for _, h := range hours {
		s.hours[h.Weekday] = append(s.hours[h.Weekday], interval{openMins: h.OpenMins, closeMins: h.CloseMins})
	}
	for _, h := range holidays {
		s.holidays[h.Date.Format("2006-01-02")] = true
	}
	return s
}

// Empty reports whether no business hours are configured at all; SLA math
// falls back to wall-clock time in that case.
func (s *Schedule) Empty() bool {
	return len(s.hours) == 0
}

func (s *Schedule) isHoliday(t time.Time) bool {
	return s.holidays[t.Format("2006-01-02")]
}

// openIntervalAt returns the business interval covering t, if any.
func (s *Schedule) openIntervalAt(t time.Time) (interval, bool) {
	if s.isHoliday(t) {
		return interval{}, false
	}
	mins := t.Hour()*60 + t.Minute()
	for _, iv := range s.hours[t.Weekday()] {
		if mins >= iv.openMins && mins < iv.closeMins {
			return iv, true
		}
	}
	return interval{}, false
}

// nextOpen returns the first instant at or after t inside business hours.
func (s *Schedule) nextOpen(t time.Time) time.Time {
	// A week of lookahead always finds an open interval on a non-empty
	// schedule unless every day is a holiday; cap the scan at a year.
	for day := 0; day < 366; day++ {
		d := t.AddDate(0, 0, day)
		if s.isHoliday(d) {
			continue
		}
		mins := 0
		if day == 0 {
			mins = t.Hour()*60 + t.Minute()
		}
		var best *interval
		for i := range s.hours[d.Weekday()] {
			iv := s.hours[d.Weekday()][i]
			if mins < iv.closeMins && (best == nil || iv.openMins < best.openMins) {
				best = &iv
			}
		}
		if best == nil {
			continue
		}
		open := best.openMins
		if mins > open {
			open = mins
		}
		return time.Date(d.Year(), d.Month(), d.Day(), open/60, open%60, 0, 0, t.Location())
	}
	return t
}

// AddBusinessMinutes advances start by minutes of business time, skipping
// closed hours and holidays. With an empty schedule it is plain wall-clock
// addition.
func (s *Schedule) AddBusinessMinutes(start time.Time, minutes int) time.Time {
	if s.Empty() || minutes <= 0 {
		return start.Add(time.Duration(minutes) * time.Minute)
	}

	cur := start.Truncate(time.Minute)
	remaining := minutes
	for remaining > 0 {
		iv, open := s.openIntervalAt(cur)
		if !open {
			cur = s.nextOpen(cur)
			iv, open = s.openIntervalAt(cur)
			if !open {
				// Nothing open within the scan horizon.
				return cur.Add(time.Duration(remaining) * time.Minute)
			}
		}
		mins := cur.Hour()*60 + cur.Minute()
		available := iv.closeMins - mins
		if available >= remaining {
			return cur.Add(time.Duration(remaining) * time.Minute)
		}
		remaining -= available
		cur = cur.Add(time.Duration(available) * time.Minute)
	}
	return cur
}
