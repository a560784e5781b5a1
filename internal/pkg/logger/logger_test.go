package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]string {
	t.Helper()
	var out []map[string]string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]string
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WARN)

	l.Info("dropped")
	l.Warn("kept", "audience", "abc123")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "kept", lines[0]["msg"])
	assert.Equal(t, "abc123", lines[0]["audience"])
}

func TestLoggerWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DEBUG).With("component", "reconciler")

	l.Error("schedule failed", "error", errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "reconciler", lines[0]["component"])
	assert.Equal(t, "boom", lines[0]["error"])
}

func TestLoggerRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DEBUG)

	l.Info("preview sent",
		"recipients", "john.doe@example.com,ab@example.com",
		"api_key", "0123456789abcdef0123456789abcdef-us21",
		"detail", "key 0123456789abcdef0123456789abcdef-us21 rejected for jane@example.org",
	)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "jo***@example.com,***@example.com", lines[0]["recipients"])
	assert.Equal(t, "****cdef-us21", lines[0]["api_key"])
	assert.Equal(t, "key ****cdef-us21 rejected for ja***@example.org", lines[0]["detail"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}
