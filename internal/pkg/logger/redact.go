package logger

import (
	"regexp"
	"strings"
)

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// Mailchimp keys look like "<32 hex>-us21".
var apiKeyRegex = regexp.MustCompile(`\b[0-9a-f]{32}-[a-z]{2}[0-9]{1,2}\b`)

// RedactAPIKey keeps the last four characters and the datacenter suffix.
// "0123...cdef-us21" → "****cdef-us21"
func RedactAPIKey(key string) string {
	if key == "" {
		return ""
	}
	secret, dc, hasDC := strings.Cut(key, "-")
	if len(secret) <= 4 {
		return "****"
	}
	out := "****" + secret[len(secret)-4:]
	if hasDC {
		out += "-" + dc
	}
	return out
}
