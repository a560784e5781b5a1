package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownFrequency is returned for frequencies outside the Frequency enum.
	ErrUnknownFrequency = errors.New("schedule: unknown frequency")
	// ErrIncompleteRule is returned when a rule lacks the fields its frequency needs.
	ErrIncompleteRule = errors.New("schedule: incomplete frequency settings")
)

// Recurrence is a parsed, validated frequency rule. The set of
// implementations is closed: immediate, daily, weekly, monthly and biweekly.
type Recurrence interface {
	Frequency() Frequency
	// next returns the next send instant after now; now is already in loc.
	next(now time.Time, loc *time.Location) time.Time
}

// clockTime is an HH:MM time of day.
type clockTime struct {
	hour, minute int
}

func parseClock(s string) (clockTime, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return clockTime{}, fmt.Errorf("schedule: invalid time %q", s)
	}
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return clockTime{}, fmt.Errorf("schedule: invalid time %q", s)
	}
	return clockTime{hour: hh, minute: mm}, nil
}

// on builds y-m-d at this time of day; out-of-range days roll like date arithmetic.
func (c clockTime) on(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, c.hour, c.minute, 0, 0, loc)
}

// Parse validates rule against freq.
func Parse(freq Frequency, rule Rule) (Recurrence, error) {
	switch freq {
	case FrequencyImmediate:
		return immediate{}, nil

	case FrequencyWeekly:
		if len(rule.Days) == 0 || len(rule.Times) == 0 {
			return nil, fmt.Errorf("%w: weekly needs a day and a time", ErrIncompleteRule)
		}
		wd, err := rule.Days[0].Weekday()
		if err != nil {
			return nil, err
		}
		at, err := parseClock(rule.Times[0])
		if err != nil {
			return nil, err
		}
		return weekly{day: wd, at: at}, nil

	case FrequencyMonthly, FrequencyBiweekly:
		if len(rule.Dates) == 0 || len(rule.Times) == 0 {
			return nil, fmt.Errorf("%w: %s needs a date and a time", ErrIncompleteRule, freq)
		}
		date := rule.Dates[0]
		if date < 1 || date > 31 {
			return nil, fmt.Errorf("schedule: invalid day of month %d", date)
		}
		at, err := parseClock(rule.Times[0])
		if err != nil {
			return nil, err
		}
		if freq == FrequencyMonthly {
			return monthly{date: date, at: at}, nil
		}
		seq := rule.Sequencing
		if seq == "" {
			seq = SequencingEveryTwo
		}
		if seq != SequencingEveryTwo && seq != SequencingEveryOther {
			return nil, fmt.Errorf("schedule: unknown sequencing %q", seq)
		}
		return biweekly{date: date, at: at, seq: seq}, nil

	case FrequencyDaily:
		if len(rule.Days) == 0 {
			return nil, fmt.Errorf("%w: daily needs at least one day", ErrIncompleteRule)
		}
		slots := make([]dailySlot, 0, len(rule.Days))
		seen := map[time.Weekday]bool{}
		for _, d := range rule.Days {
			wd, err := d.Weekday()
			if err != nil {
				return nil, err
			}
			if seen[wd] {
				continue
			}
			seen[wd] = true
			raw, ok := rule.timeFor(d)
			if !ok {
				return nil, fmt.Errorf("%w: no time for %s", ErrIncompleteRule, wd)
			}
			at, err := parseClock(raw)
			if err != nil {
				return nil, err
			}
			slots = append(slots, dailySlot{day: wd, at: at})
		}
		sort.Slice(slots, func(i, j int) bool { return slots[i].day < slots[j].day })
		return daily{slots: slots}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFrequency, freq)
}

// ===== immediate =====

type immediate struct{}

func (immediate) Frequency() Frequency { return FrequencyImmediate }

// next rounds up to the next quarter hour. On an exact boundary it still
// moves a full 15 minutes; seconds are kept.
func (immediate) next(now time.Time, _ *time.Location) time.Time {
	add := 15 - now.Minute()%15
	return now.Add(time.Duration(add) * time.Minute)
}

// ===== weekly =====

type weekly struct {
	day time.Weekday
	at  clockTime
}

func (weekly) Frequency() Frequency { return FrequencyWeekly }

// next is the following occurrence of the weekday, 1 to 7 days ahead.
// Today never qualifies, even when its time is still ahead.
func (w weekly) next(now time.Time, loc *time.Location) time.Time {
	days := (int(w.day) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	y, m, d := now.Date()
	return w.at.on(y, m, d+days, loc)
}

// ===== monthly =====

type monthly struct {
	date int
	at   clockTime
}

func (monthly) Frequency() Frequency { return FrequencyMonthly }

func (mo monthly) next(now time.Time, loc *time.Location) time.Time {
	y, m, _ := now.Date()
	candidate := mo.at.on(y, m, mo.date, loc)
	if !candidate.Before(now) {
		return candidate
	}
	// first day of next month, then date-1 days on
	return mo.at.on(y, m+1, 1, loc).AddDate(0, 0, mo.date-1)
}

// ===== biweekly =====

type biweekly struct {
	date int
	at   clockTime
	seq  Sequencing
}

func (biweekly) Frequency() Frequency { return FrequencyBiweekly }

func (b biweekly) next(now time.Time, loc *time.Location) time.Time {
	y, m, _ := now.Date()
	candidate := b.at.on(y, m, b.date, loc)
	if !candidate.Before(now) {
		return candidate
	}
	second := b.second(candidate, y, m, loc)
	if !second.Before(now) {
		return second
	}
	// both sends of this month are past
	return b.at.on(y, m+1, b.date, loc)
}

func (b biweekly) second(first time.Time, y int, m time.Month, loc *time.Location) time.Time {
	if b.seq == SequencingEveryOther {
		return first.AddDate(0, 0, 14)
	}
	opposite := (first.Day() - 1) + 15
	if opposite > 28 {
		// day 0 of next month is the last day of this one
		return b.at.on(y, m+1, 0, loc)
	}
	return b.at.on(y, m, opposite, loc)
}

// ===== daily =====

type dailySlot struct {
	day time.Weekday
	at  clockTime
}

type daily struct {
	slots []dailySlot // sorted Sunday..Saturday
}

func (daily) Frequency() Frequency { return FrequencyDaily }

// next picks the earliest configured slot of the current Monday-based week
// that has not passed, else the earliest slot of the following week.
func (dl daily) next(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.Date()
	monday := d - (int(now.Weekday())+6)%7

	var best, first time.Time
	for _, s := range dl.slots {
		offset := (int(s.day) + 6) % 7
		candidate := s.at.on(y, m, monday+offset, loc)
		if first.IsZero() || candidate.Before(first) {
			first = candidate
		}
		if candidate.Before(now) {
			continue
		}
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}
	if !best.IsZero() {
		return best
	}
	return first.AddDate(0, 0, 7)
}
