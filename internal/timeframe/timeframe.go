// Package timeframe resolves the named reporting periods into concrete
// half-open [From, To) time ranges.
package timeframe

import (
	"fmt"
	"time"
)

// Period represents the available reporting period options
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// TimeFrame is a half-open range: a click belongs to it when
// From <= occurredAt < To. For the all-time period both bounds are zero.
type TimeFrame struct {
	From   time.Time
	To     time.Time
	Period Period
	Tz     *time.Location
}

// ParsePeriod validates a period string, defaulting empty input to all-time.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodAll:
		return Period(s), nil
	case "":
		return PeriodAll, nil
	default:
		return "", fmt.Errorf("invalid period: %q", s)
	}
}

// Resolve computes the time frame for a period relative to now in the given
// location. "today" starts at the local midnight; "week" is a rolling 7-day
// window and "month" goes back one calendar month, with Go's date
// normalization on short months (Mar 31 minus one month lands in early March).
func Resolve(period Period, now time.Time, tz *time.Location) TimeFrame {
	if tz == nil {
		tz = time.UTC
	}
	local := now.In(tz)

	tf := TimeFrame{Period: period, Tz: tz, To: now}
	switch period {
	case PeriodToday:
		tf.From = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
	case PeriodWeek:
		tf.From = now.AddDate(0, 0, -7)
	case PeriodMonth:
		tf.From = now.AddDate(0, -1, 0)
	default:
		tf.From = time.Time{}
		tf.To = time.Time{}
	}
	return tf
}
