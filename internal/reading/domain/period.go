package domain

import "time"

const periodLayout = "2006-01"

// Period is a calendar-month billing period formatted as YYYY-MM.
type Period string

// PeriodOf truncates t to its calendar month in loc. A nil loc means UTC.
func PeriodOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	return Period(t.In(loc).Format(periodLayout))
}

func (p Period) String() string { return string(p) }
