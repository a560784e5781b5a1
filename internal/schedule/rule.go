package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency names a recurrence kind as stored in audience settings.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// Sequencing selects how a biweekly rule picks its second send.
type Sequencing string

const (
	// SequencingEveryTwo sends twice a month, about half a month apart.
	SequencingEveryTwo Sequencing = "every_two"
	// SequencingEveryOther sends every fourteen days.
	SequencingEveryOther Sequencing = "every_other"
)

// Weekday is a configured day as the editor UI sends it.
type Weekday struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Weekday resolves the value (or the label when the value is empty).
func (d Weekday) Weekday() (time.Weekday, error) {
	for _, s := range []string{d.Value, d.Label} {
		if wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]; ok {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("schedule: unknown weekday %q", d.Value)
}

// key is the lookup key for per-day times.
func (d Weekday) key() string {
	if d.Value != "" {
		return strings.ToLower(d.Value)
	}
	return strings.ToLower(d.Label)
}

// DayFromWeekday builds the stored form of wd.
func DayFromWeekday(wd time.Weekday) Weekday {
	return Weekday{Value: strings.ToLower(wd.String()), Label: wd.String()}
}

// Rule holds the frequency settings of an audience campaign. Which fields
// matter depends on the frequency: weekly uses Days[0] and Times[0], monthly
// and biweekly use Dates[0] and Times[0], daily uses Days with DayTimes.
type Rule struct {
	Days       []Weekday
	Times      []string
	DayTimes   map[string]string
	Dates      []int
	Sequencing Sequencing
}

// DefaultRule is the rule a fresh audience starts with.
func DefaultRule() Rule {
	return Rule{
		Days:       []Weekday{{Value: "monday", Label: "Monday"}},
		Times:      []string{"12:30"},
		Dates:      []int{1},
		Sequencing: SequencingEveryTwo,
	}
}

// Equal reports whether two rules describe the same recurrence.
func (r Rule) Equal(o Rule) bool {
	a, _ := json.Marshal(r)
	b, _ := json.Marshal(o)
	return string(a) == string(b)
}

// timeFor returns the HH:MM for a daily slot, falling back to the first list time.
func (r Rule) timeFor(d Weekday) (string, bool) {
	if t, ok := r.DayTimes[d.key()]; ok && t != "" {
		return t, true
	}
	if len(r.Times) > 0 && r.Times[0] != "" {
		return r.Times[0], true
	}
	return "", false
}

type ruleJSON struct {
	Days       []json.RawMessage `json:"days"`
	Times      json.RawMessage   `json:"times,omitempty"`
	DayTimes   map[string]string `json:"day_times,omitempty"`
	Dates      []json.RawMessage `json:"dates"`
	Sequencing Sequencing        `json:"sequencing,omitempty"`
}

// MarshalJSON writes the list form of times; per-day times go to day_times.
func (r Rule) MarshalJSON() ([]byte, error) {
	out := struct {
		Days       []Weekday         `json:"days"`
		Times      []string          `json:"times"`
		DayTimes   map[string]string `json:"day_times,omitempty"`
		Dates      []int             `json:"dates"`
		Sequencing Sequencing        `json:"sequencing,omitempty"`
	}{r.Days, r.Times, r.DayTimes, r.Dates, r.Sequencing}
	if out.Days == nil {
		out.Days = []Weekday{}
	}
	if out.Times == nil {
		out.Times = []string{}
	}
	if out.Dates == nil {
		out.Dates = []int{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the shapes the editor has historically sent:
// days as objects or bare names, times as a list or a weekday-keyed object,
// dates as numbers, numeric strings or {"value": n} objects.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("schedule: decode rule: %w", err)
	}

	*r = Rule{Sequencing: raw.Sequencing}
	for _, d := range raw.Days {
		var day Weekday
		if err := json.Unmarshal(d, &day); err != nil {
			var name string
			if err := json.Unmarshal(d, &name); err != nil {
				return fmt.Errorf("schedule: decode day %s: %w", string(d), err)
			}
			day = Weekday{Value: strings.ToLower(name), Label: name}
		}
		r.Days = append(r.Days, day)
	}

	if len(raw.Times) > 0 && string(raw.Times) != "null" {
		var list []string
		if err := json.Unmarshal(raw.Times, &list); err == nil {
			r.Times = list
		} else {
			var byDay map[string]string
			if err := json.Unmarshal(raw.Times, &byDay); err != nil {
				return fmt.Errorf("schedule: decode times: %w", err)
			}
			r.DayTimes = lowerKeys(byDay)
		}
	}
	for k, v := range raw.DayTimes {
		if r.DayTimes == nil {
			r.DayTimes = map[string]string{}
		}
		r.DayTimes[strings.ToLower(k)] = v
	}

	for _, d := range raw.Dates {
		n, err := decodeDate(d)
		if err != nil {
			return err
		}
		r.Dates = append(r.Dates, n)
	}
	return nil
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func decodeDate(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("schedule: invalid date %q", s)
		}
		return v, nil
	}
	var obj struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj.Value) == 0 {
		return 0, fmt.Errorf("schedule: invalid date %s", string(raw))
	}
	return decodeDate(obj.Value)
}
