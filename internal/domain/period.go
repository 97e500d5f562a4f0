package domain

import "time"

// Period is a named time window used to filter scores by created_at.
type Period string

const (
	PeriodAll   Period = ""
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod validates a period query value. The empty string means all-time.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodAll, PeriodToday, PeriodWeek, PeriodMonth, PeriodYear:
		return Period(s), nil
	}
	return PeriodAll, NewValidationError("period", "must be one of today, week, month, year")
}

// WindowStart returns the inclusive lower bound of the window ending at now,
// evaluated in loc. Boundaries: today starts at midnight of the current
// calendar day in loc; week, month and year are rolling 7, 30 and 365 days.
// ok is false for the all-time period.
func (p Period) WindowStart(now time.Time, loc *time.Location) (start time.Time, ok bool) {
	local := now.In(loc)
	switch p {
	case PeriodToday:
		y, m, d := local.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), true
	case PeriodWeek:
		return local.AddDate(0, 0, -7), true
	case PeriodMonth:
		return local.AddDate(0, 0, -30), true
	case PeriodYear:
		return local.AddDate(0, 0, -365), true
	default:
		return time.Time{}, false
	}
}

func (p Period) String() string {
	if p == PeriodAll {
		return "all"
	}
	return string(p)
}
