package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("today")
	require.NoError(t, err)
	assert.Equal(t, PeriodToday, p)

	p, err = ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, PeriodAll, p)

	_, err = ParsePeriod("fortnight")
	assert.Error(t, err)
}

func TestResolveToday(t *testing.T) {
	tz, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	tf := Resolve(PeriodToday, now, tz)

	// 14:30 UTC is 15:30 in Madrid; local day started at 00:00 CET.
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, tz), tf.From)
	assert.Equal(t, now, tf.To)
}

func TestResolveRollingWindows(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	week := Resolve(PeriodWeek, now, time.UTC)
	assert.Equal(t, now.AddDate(0, 0, -7), week.From)

	month := Resolve(PeriodMonth, now, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC), month.From)
}

func TestResolveMonthOnThirtyFirst(t *testing.T) {
	// One calendar month back from Mar 31 is Feb 31, which Go normalizes
	// into March. The window is shorter than 30 days, not padded out to one.
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	tf := Resolve(PeriodMonth, now, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), tf.From)
	assert.Equal(t, now, tf.To)
}

func TestResolveAllTime(t *testing.T) {
	tf := Resolve(PeriodAll, time.Now().UTC(), time.UTC)
	assert.True(t, tf.From.IsZero())
	assert.True(t, tf.To.IsZero())
}
