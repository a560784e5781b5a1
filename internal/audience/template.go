package audience

// Row types understood by the default renderer.
const (
	RowText    = "text"
	RowCode    = "code"
	RowSpacer  = "spacer"
	RowImage   = "image"
	RowSection = "section"
	RowTwoCol  = "two_col"
)

// Section layouts.
const (
	LayoutLargeFirst = "large_first_thumb_rest"
	LayoutColumns    = "thumb_all_cols"
	LayoutRows       = "thumb_all_rows"
)

// TemplateRow is one block of the email layout built in the editor.
type TemplateRow struct {
	Type        string      `json:"type"`
	Label       string      `json:"label,omitempty"`
	CSSID       string      `json:"css_id,omitempty"`
	Text        string      `json:"text,omitempty"`
	Code        string      `json:"code,omitempty"`
	Height      int         `json:"height,omitempty"`
	Image       *ImageRef   `json:"image,omitempty"`
	ImageLink   string      `json:"image_link,omitempty"`
	ImageWidth  *Option     `json:"image_width,omitempty"`
	Section     *SectionRef `json:"section,omitempty"`
	RangeFrom   *int        `json:"range_from,omitempty"`
	RangeTo     *int        `json:"range_to,omitempty"`
	LayoutStyle string      `json:"layout_style,omitempty"`
	Columns     *Columns    `json:"columns,omitempty"`
}

// ImageRef points at an uploaded image.
type ImageRef struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// Option is a {title, value} pick from the editor.
type Option struct {
	Title string `json:"title"`
	Value string `json:"value,omitempty"`
}

// SectionRef links a layout row to a queue section. Items is only ever
// filled transiently by the editor and is dropped before saving.
type SectionRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Items []Item `json:"items,omitempty"`
}

// Columns holds the two halves of a two_col row.
type Columns struct {
	Left  *TemplateRow `json:"left,omitempty"`
	Right *TemplateRow `json:"right,omitempty"`
}

// Range returns the [from, to) window of section items to show.
func (r TemplateRow) Range() (from, to int) {
	from, to = 0, 100
	if r.RangeFrom != nil {
		from = *r.RangeFrom
	}
	if r.RangeTo != nil {
		to = *r.RangeTo
	}
	return from, to
}

func (r *TemplateRow) stripItems() {
	if r.Section != nil {
		r.Section.Items = nil
	}
	if r.Columns != nil {
		if r.Columns.Left != nil {
			r.Columns.Left.stripItems()
		}
		if r.Columns.Right != nil {
			r.Columns.Right.stripItems()
		}
	}
}
