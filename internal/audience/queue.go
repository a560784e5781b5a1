package audience

import (
	"errors"
	"fmt"
)

var (
	ErrSectionNotFound = errors.New("audience: section not found")
	ErrItemNotFound    = errors.New("audience: item not found")
	ErrDuplicateID     = errors.New("audience: duplicate id")
)

// Queue is the ordered content waiting to go out with the next send.
type Queue struct {
	Sections []Section `json:"sections"`
}

// Section is a titled group of items; IDs are unique within a queue.
type Section struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// Item is one piece of site content.
type Item struct {
	ID            ContentID `json:"id"`
	Title         string    `json:"title"`
	Excerpt       string    `json:"excerpt"`
	LinkToContent string    `json:"link_to_content"`
	KeepInQueue   bool      `json:"keep_in_queue"`
	ThumbnailURL  string    `json:"thumbnail_url,omitempty"`
}

// SectionSummary is a section without its items.
type SectionSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Items int    `json:"items"`
}

// Location says where an item was found.
type Location struct {
	SectionID    string `json:"section_id"`
	SectionTitle string `json:"section_title"`
	Index        int    `json:"index"`
}

func (q *Queue) validate() error {
	seen := map[string]bool{}
	for _, s := range q.Sections {
		if s.ID == "" {
			return fmt.Errorf("%w: section with empty id", ErrInvalidSettings)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: section %q", ErrDuplicateID, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Total counts items across every section.
func (q *Queue) Total() int {
	n := 0
	for _, s := range q.Sections {
		n += len(s.Items)
	}
	return n
}

// Section returns a pointer into the queue for id.
func (q *Queue) Section(id string) (*Section, bool) {
	for i := range q.Sections {
		if q.Sections[i].ID == id {
			return &q.Sections[i], true
		}
	}
	return nil, false
}

// Rotate drops every item not marked KeepInQueue, preserving order, and
// returns how many were removed. Rotating twice equals rotating once.
func (q *Queue) Rotate() int {
	removed := 0
	for i := range q.Sections {
		kept := q.Sections[i].Items[:0]
		for _, it := range q.Sections[i].Items {
			if it.KeepInQueue {
				kept = append(kept, it)
			} else {
				removed++
			}
		}
		q.Sections[i].Items = kept
	}
	return removed
}

// AddSection appends an empty section.
func (q *Queue) AddSection(id, title string) error {
	if id == "" {
		return fmt.Errorf("%w: section id is required", ErrInvalidSettings)
	}
	if _, ok := q.Section(id); ok {
		return fmt.Errorf("%w: section %q", ErrDuplicateID, id)
	}
	q.Sections = append(q.Sections, Section{ID: id, Title: title, Items: []Item{}})
	return nil
}

// RemoveSection deletes a section and its items.
func (q *Queue) RemoveSection(id string) error {
	for i := range q.Sections {
		if q.Sections[i].ID == id {
			q.Sections = append(q.Sections[:i], q.Sections[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrSectionNotFound, id)
}

// Upsert puts item into sectionID. An item already in that section is
// updated in place; an item in another section is moved to the end of
// this one.
func (q *Queue) Upsert(sectionID string, item Item) error {
	target, ok := q.Section(sectionID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSectionNotFound, sectionID)
	}
	for i := range target.Items {
		if target.Items[i].ID == item.ID {
			target.Items[i] = item
			return nil
		}
	}
	q.Remove(item.ID)
	target.Items = append(target.Items, item)
	return nil
}

// Remove deletes the item from every section; it reports whether anything was removed.
func (q *Queue) Remove(id ContentID) bool {
	found := false
	for i := range q.Sections {
		kept := q.Sections[i].Items[:0]
		for _, it := range q.Sections[i].Items {
			if it.ID == id {
				found = true
				continue
			}
			kept = append(kept, it)
		}
		q.Sections[i].Items = kept
	}
	return found
}

// Reorder sets the item order of a section. ids must name every item of
// the section exactly once.
func (q *Queue) Reorder(sectionID string, ids []ContentID) error {
	s, ok := q.Section(sectionID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSectionNotFound, sectionID)
	}
	if len(ids) != len(s.Items) {
		return fmt.Errorf("%w: reorder of %q needs %d ids, got %d", ErrInvalidSettings, sectionID, len(s.Items), len(ids))
	}
	byID := make(map[ContentID]Item, len(s.Items))
	for _, it := range s.Items {
		byID[it.ID] = it
	}
	ordered := make([]Item, 0, len(ids))
	for _, id := range ids {
		it, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: %q in section %q", ErrItemNotFound, id, sectionID)
		}
		delete(byID, id)
		ordered = append(ordered, it)
	}
	s.Items = ordered
	return nil
}

// Find locates an item.
func (q *Queue) Find(id ContentID) (Item, Location, bool) {
	for _, s := range q.Sections {
		for i, it := range s.Items {
			if it.ID == id {
				return it, Location{SectionID: s.ID, SectionTitle: s.Title, Index: i}, true
			}
		}
	}
	return Item{}, Location{}, false
}

// Summaries lists sections without their items.
func (q *Queue) Summaries() []SectionSummary {
	out := make([]SectionSummary, 0, len(q.Sections))
	for _, s := range q.Sections {
		out = append(out, SectionSummary{ID: s.ID, Title: s.Title, Items: len(s.Items)})
	}
	return out
}

// RefreshLinks rewrites LinkToContent for every item resolve knows about
// and returns how many links changed.
func (q *Queue) RefreshLinks(resolve func(ContentID) (string, bool)) int {
	changed := 0
	for i := range q.Sections {
		for j := range q.Sections[i].Items {
			it := &q.Sections[i].Items[j]
			if link, ok := resolve(it.ID); ok && link != it.LinkToContent {
				it.LinkToContent = link
				changed++
			}
		}
	}
	return changed
}
