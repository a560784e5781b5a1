package campaign

import (
	"strconv"
	"strings"
	"time"
)

// DateTodayLayout renders {date_today}, e.g. "Monday, January 2".
const DateTodayLayout = "Monday, January 2"

// TokenData feeds ParseTokens.
type TokenData struct {
	AudienceTitle     string
	TotalContentItems int
	Today             time.Time
}

// ParseTokens replaces {date_today}, {audience_title} and
// {total_content_items} in text. Anything else is left verbatim.
func ParseTokens(text string, data TokenData) string {
	today := data.Today
	if today.IsZero() {
		today = time.Now()
	}
	return strings.NewReplacer(
		"{date_today}", today.Format(DateTodayLayout),
		"{audience_title}", data.AudienceTitle,
		"{total_content_items}", strconv.Itoa(data.TotalContentItems),
	).Replace(text)
}
