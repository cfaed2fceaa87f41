package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule computes fire times for a RecurringTrigger
type Schedule interface {
	// Next returns the first fire time strictly after after
	Next(after time.Time) time.Time
}

// Every fires at multiples of d counted from the zero time
func Every(d time.Duration) Schedule {
	if d <= 0 {
		d = time.Minute
	}
	return interval{d: d}
}

type interval struct {
	d time.Duration
}

func (s interval) Next(after time.Time) time.Time {
	return after.Truncate(s.d).Add(s.d)
}

func (s interval) String() string {
	return "every " + s.d.String()
}

// Hourly fires at the top of every hour in the local time of after
func Hourly() Schedule {
	return HourlyAt(0)
}

// HourlyAt fires at the given minute of every hour
func HourlyAt(minute int) Schedule {
	return hourly{minute: minute}
}

type hourly struct {
	minute int
}

func (s hourly) Next(after time.Time) time.Time {
	t := time.Date(after.Year(), after.Month(), after.Day(), after.Hour(), s.minute, 0, 0, after.Location())
	if !t.After(after) {
		t = t.Add(time.Hour)
	}
	return t
}

func (s hourly) String() string {
	return fmt.Sprintf("hourly at :%02d", s.minute)
}

// DailyAt fires once a day at hour:minute in the local time of after
func DailyAt(hour, minute int) Schedule {
	return daily{hour: hour, minute: minute}
}

type daily struct {
	hour   int
	minute int
}

func (s daily) Next(after time.Time) time.Time {
	t := time.Date(after.Year(), after.Month(), after.Day(), s.hour, s.minute, 0, 0, after.Location())
	if !t.After(after) {
		t = time.Date(after.Year(), after.Month(), after.Day()+1, s.hour, s.minute, 0, 0, after.Location())
	}
	return t
}

func (s daily) String() string {
	return fmt.Sprintf("daily at %02d:%02d", s.hour, s.minute)
}

// ParseSchedule accepts the two cron shapes used for sync jobs:
// "M * * * *" (hourly at minute M) and "M H * * *" (daily at H:M).
func ParseSchedule(expr string) (Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: %q: expected 5 fields", ErrInvalidSchedule, expr)
	}
	for _, f := range fields[2:] {
		if f != "*" {
			return nil, fmt.Errorf("%w: %q: only minute and hour may be set", ErrInvalidSchedule, expr)
		}
	}

	minute, err := strconv.Atoi(fields[0])
	if err != nil || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("%w: %q: bad minute", ErrInvalidSchedule, expr)
	}
	if fields[1] == "*" {
		return HourlyAt(minute), nil
	}
	hour, err := strconv.Atoi(fields[1])
	if err != nil || hour < 0 || hour > 23 {
		return nil, fmt.Errorf("%w: %q: bad hour", ErrInvalidSchedule, expr)
	}
	return DailyAt(hour, minute), nil
}
