package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Timezone is the site timezone captured with audience settings: an IANA
// label ("America/New_York") and/or a UTC offset ("-05:00", "-5", "+5.5").
type Timezone struct {
	Label  string `json:"label"`
	Offset string `json:"offset"`
}

// UTC is the fallback zone.
var UTC = Timezone{Label: "UTC", Offset: "+00:00"}

// Location resolves the zone: the label first (IANA names and fixed
// offsets), then the offset, then UTC.
func (tz Timezone) Location() *time.Location {
	if tz.Label != "" {
		if loc, err := time.LoadLocation(tz.Label); err == nil {
			return loc
		}
		if loc, ok := parseOffset(tz.Label); ok {
			return loc
		}
	}
	if loc, ok := parseOffset(tz.Offset); ok {
		return loc
	}
	return time.UTC
}

// parseOffset understands "+02:00", "-0530", "UTC+2", "5.5" and "-5".
func parseOffset(s string) (*time.Location, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "UTC"), "GMT")
	if s == "" {
		return nil, false
	}

	sign := 1
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	}

	var seconds int
	switch {
	case strings.Contains(s, ":"):
		h, m, _ := strings.Cut(s, ":")
		hh, err1 := strconv.Atoi(h)
		mm, err2 := strconv.Atoi(m)
		if err1 != nil || err2 != nil {
			return nil, false
		}
		seconds = hh*3600 + mm*60
	case len(s) == 4 && !strings.Contains(s, "."):
		hh, err1 := strconv.Atoi(s[:2])
		mm, err2 := strconv.Atoi(s[2:])
		if err1 != nil || err2 != nil {
			return nil, false
		}
		seconds = hh*3600 + mm*60
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		seconds = int(f * 3600)
	}
	if seconds > 14*3600 {
		return nil, false
	}
	seconds *= sign
	return time.FixedZone(formatOffset(seconds), seconds), true
}

func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, seconds/3600, (seconds%3600)/60)
}
