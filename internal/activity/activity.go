// Package activity keeps the log editors see under settings: one line per
// provider outcome, newest first, trimmed to a fixed length.
package activity

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry states, shown as icons by the editor.
const (
	StateInfo    = "info"
	StateSuccess = "check_circle"
	StateAlert   = "alert"
	StateError   = "error"
)

// DefaultKeep is how many entries are retained and listed.
const DefaultKeep = 200

// Entry is one activity line.
type Entry struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Text    string    `json:"text"`
	State   string    `json:"state"`
	Context string    `json:"context"`
	Slug    string    `json:"slug"`
}

// Recorder stores entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Log stores and lists entries.
type Log interface {
	Recorder
	List(ctx context.Context, limit int) ([]Entry, error)
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a slug from the first three words of text.
func Slug(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Trim(slugStrip.ReplaceAllString(strings.Join(words, "-"), "-"), "-")
}

// prepare fills id, time, state, context and slug.
func prepare(e Entry, now time.Time) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = now.UTC()
	}
	if e.State == "" {
		e.State = StateInfo
	}
	if e.Context == "" {
		e.Context = "campaignsync"
	}
	if e.Slug == "" {
		e.Slug = Slug(e.Text)
	}
	return e
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error        { return nil }
func (Nop) List(context.Context, int) ([]Entry, error) { return []Entry{}, nil }

// Memory keeps the newest entries in process.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	keep    int
}

// NewMemory keeps up to keep entries (DefaultKeep when <= 0).
func NewMemory(keep int) *Memory {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Memory{keep: keep}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, prepare(e, time.Now()))
	if over := len(m.entries) - m.keep; over > 0 {
		m.entries = m.entries[over:]
	}
	return nil
}

func (m *Memory) List(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
