// Package schedule computes the next send instant of a recurring campaign.
//
// All arithmetic happens in the audience's configured timezone and the
// current instant is always supplied by the caller or a clock.Clock, so
// results are reproducible.
package schedule

import (
	"time"

	"github.com/ignite/campaignsync/internal/pkg/clock"
)

// SendTimeLayout is the local "YYYY-MM-DD HH:MM:SS" form used in settings
// and API responses.
const SendTimeLayout = "2006-01-02 15:04:05"

// Next returns the next send instant for freq/rule, evaluated at now in tz.
// The result carries tz's location.
func Next(freq Frequency, rule Rule, tz Timezone, now time.Time) (time.Time, error) {
	rec, err := Parse(freq, rule)
	if err != nil {
		return time.Time{}, err
	}
	return NextFor(rec, tz, now), nil
}

// NextFor evaluates an already parsed recurrence.
func NextFor(rec Recurrence, tz Timezone, now time.Time) time.Time {
	loc := tz.Location()
	return rec.next(now.In(loc).Truncate(time.Second), loc)
}

// FormatSendTime renders t in its own location as YYYY-MM-DD HH:MM:SS.
func FormatSendTime(t time.Time) string {
	return t.Format(SendTimeLayout)
}

// ParseSendTime reads a FormatSendTime string in tz.
func ParseSendTime(s string, tz Timezone) (time.Time, error) {
	return time.ParseInLocation(SendTimeLayout, s, tz.Location())
}

// Calculator binds Next to a clock.
type Calculator struct {
	clock clock.Clock
}

// NewCalculator returns a calculator reading c; nil means the system clock.
func NewCalculator(c clock.Clock) *Calculator {
	if c == nil {
		c = clock.Real{}
	}
	return &Calculator{clock: c}
}

// Now returns the calculator's current instant.
func (c *Calculator) Now() time.Time { return c.clock.Now() }

// Next computes the next send instant from the clock's current time.
func (c *Calculator) Next(freq Frequency, rule Rule, tz Timezone) (time.Time, error) {
	return Next(freq, rule, tz, c.clock.Now())
}

// NextString is Next formatted with FormatSendTime.
func (c *Calculator) NextString(freq Frequency, rule Rule, tz Timezone) (string, error) {
	t, err := c.Next(freq, rule, tz)
	if err != nil {
		return "", err
	}
	return FormatSendTime(t), nil
}
