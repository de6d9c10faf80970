package domain

import (
	"time"
	_ "time/tzdata"

	"github.com/iago/reportflow/internal/validation"
)

// NextExecution returns the first instant strictly after from at which the
// schedule fires, in UTC. Calendar arithmetic happens in the schedule's zone.
func NextExecution(cfg ScheduleConfig, from time.Time) (time.Time, error) {
	if err := cfg.Validate(); err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return time.Time{}, &validation.Error{Field: "scheduleConfig.timezone", Message: "unknown timezone: " + cfg.Timezone}
	}

	local := from.In(loc)
	year, month, day := local.Date()
	at := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, cfg.Hour, cfg.Minute, 0, 0, loc)
	}

	var next time.Time
	switch cfg.Frequency {
	case FrequencyDaily:
		next = at(year, month, day)
		if !next.After(from) {
			next = at(year, month, day+1)
		}
	case FrequencyWeekly:
		ahead := (*cfg.DayOfWeek - int(local.Weekday()) + 7) % 7
		next = at(year, month, day+ahead)
		if !next.After(from) {
			next = at(year, month, day+ahead+7)
		}
	case FrequencyMonthly:
		next = monthlyOccurrence(year, month, *cfg.DayOfMonth, at)
		if !next.After(from) {
			next = monthlyOccurrence(year, month+1, *cfg.DayOfMonth, at)
		}
	case FrequencyQuarterly:
		quarterStart := month - (month-1)%3
		next = monthlyOccurrence(year, quarterStart, anchorDay(cfg), at)
		if !next.After(from) {
			next = monthlyOccurrence(year, quarterStart+3, anchorDay(cfg), at)
		}
	case FrequencyYearly:
		next = monthlyOccurrence(year, time.January, anchorDay(cfg), at)
		if !next.After(from) {
			next = monthlyOccurrence(year+1, time.January, anchorDay(cfg), at)
		}
	}
	return next.UTC(), nil
}

// monthlyOccurrence places day in the given month, clamping to its last day.
// Month overflow (13, 15...) rolls into the following year.
func monthlyOccurrence(year int, month time.Month, day int, at func(int, time.Month, int) time.Time) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return at(first.Year(), first.Month(), day)
}

func anchorDay(cfg ScheduleConfig) int {
	if cfg.DayOfMonth != nil {
		return *cfg.DayOfMonth
	}
	return 1
}
