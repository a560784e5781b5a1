package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/campaign"
	"github.com/ignite/campaignsync/internal/pkg/clock"
	"github.com/ignite/campaignsync/internal/schedule"
)

type settingsMap map[string]*audience.Settings

func (m settingsMap) Get(_ context.Context, id string) (*audience.Settings, error) {
	s, ok := m[id]
	if !ok {
		return nil, errors.New("no settings")
	}
	return s, nil
}

type titles map[string]string

func (t titles) GetAudience(_ context.Context, id string) (*campaign.Audience, error) {
	title, ok := t[id]
	if !ok {
		return nil, &campaign.ProviderError{Status: 404}
	}
	return &campaign.Audience{ID: id, Title: title}, nil
}

func intp(n int) *int { return &n }

func fixture(rows ...audience.TemplateRow) *audience.Settings {
	s := audience.Default(schedule.UTC, "")
	s.Queue.Sections[0].Items = []audience.Item{
		{ID: "1", Title: "First", Excerpt: "one", LinkToContent: "https://x.test/1", ThumbnailURL: "https://x.test/1.jpg"},
		{ID: "2", Title: "Second", Excerpt: "two", LinkToContent: "https://x.test/2"},
		{ID: "3", Title: "Third", Excerpt: "three"},
	}
	s.Campaign.EmailTemplate.TemplateContent = rows
	return s
}

func newRenderer(t *testing.T, s *audience.Settings) *Renderer {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC))
	r, err := New(settingsMap{"aud1": s}, titles{"aud1": "Weekly Digest"}, clk)
	require.NoError(t, err)
	return r
}

func TestRenderDocumentWidth(t *testing.T) {
	s := fixture()
	html, err := newRenderer(t, s).RenderEmailHTML(context.Background(), "aud1")
	require.NoError(t, err)
	assert.Contains(t, html, "width: 600px")
	assert.Contains(t, html, "font-family: Arial")

	s.Campaign.EmailTemplate.WidthType = audience.WidthFluid
	html, err = newRenderer(t, s).RenderEmailHTML(context.Background(), "aud1")
	require.NoError(t, err)
	assert.Contains(t, html, "width: 90%")
}

func TestRenderTextTokens(t *testing.T) {
	s := fixture(audience.TemplateRow{
		Type:  audience.RowText,
		CSSID: "intro",
		Text:  "<p>{{ audience_title }} has {{ total_content_items }} stories for {{ date_today }}</p>",
	})
	html, err := newRenderer(t, s).RenderEmailHTML(context.Background(), "aud1")
	require.NoError(t, err)
	assert.Contains(t, html, `<div id="intro"`)
	assert.Contains(t, html, "<p>Weekly Digest has 3 stories for Monday, March 9</p>")
}

func TestRenderBrokenLiquidKeptVerbatim(t *testing.T) {
	s := fixture(audience.TemplateRow{Type: audience.RowCode, Code: "<b>{% nope</b>"})
	html, err := newRenderer(t, s).RenderEmailHTML(context.Background(), "aud1")
	require.NoError(t, err)
	assert.Contains(t, html, "<b>{% nope</b>")
}

func TestRenderTitleFallsBackToID(t *testing.T) {
	s := fixture(audience.TemplateRow{Type: audience.RowCode, Code: "{{ audience_title }}"})
	r, err := New(settingsMap{"aud9": s}, titles{}, clock.NewFixed(time.Now()))
	require.NoError(t, err)
	html, err := r.RenderEmailHTML(context.Background(), "aud9")
	require.NoError(t, err)
	assert.Contains(t, html, "aud9")
}

func TestRenderSpacerAndImage(t *testing.T) {
	s := fixture(
		audience.TemplateRow{Type: audience.RowSpacer, Height: 24},
		audience.TemplateRow{Type: audience.RowImage, Image: &audience.ImageRef{URL: "https://x.test/banner.png", Alt: `Big "sale"`}, ImageLink: "https://x.test/", ImageWidth: &audience.Option{Title: "Full"}},
		audience.TemplateRow{Type: audience.RowImage},
	)
	html, err := newRenderer(t, s).RenderEmailHTML(context.Background(), "aud1")
	require.NoError(t, err)
	assert.Contains(t, html, "height: 24px;")
	assert.Contains(t, html, `src="https://x.test/banner.png"`)
	assert.Contains(t, html, `alt="Big &quot;sale&quot;"`)
	assert.Contains(t, html, `width="100%"`)
	assert.Contains(t, html, "padding: 0;")
	assert.Contains(t, html, `<a href="https://x.test/"`)
	assert.Equal(t, 1, strings.Count(html, "<img"))
}

func TestRenderSectionLargeFirst(t *testing.T) {
	s := fixture(audience.TemplateRow{Type: audience.RowSection, Section: &audience.SectionRef{ID: audience.DefaultSectionID}})
	html, err := newRenderer(t, s).RenderEmailHTML(context.Background(), "aud1")
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(html, "<tr>"), "first item alone, then a pair")
	assert.Equal(t, strings.Count(html, "<tr>"), strings.Count(html, "</tr>"))
	assert.Contains(t, html, "colspan='2'")
	assert.Contains(t, html, "<img src='https://x.test/1.jpg'")
	assert.Contains(t, html, "<a href='https://x.test/2' style='font-weight:bold;' class='campaignpress-link'>Second</a>")
	assert.Contains(t, html, "Third")
	assert.Less(t, strings.Index(html, "First"), strings.Index(html, "Second"))
}

func TestRenderSectionRangeAndColumns(t *testing.T) {
	s := fixture(audience.TemplateRow{
		Type:        audience.RowSection,
		Section:     &audience.SectionRef{ID: audience.DefaultSectionID},
		RangeFrom:   intp(1),
		RangeTo:     intp(3),
		LayoutStyle: audience.LayoutColumns,
	})
	html, err := newRenderer(t, s).RenderEmailHTML(context.Background(), "aud1")
	require.NoError(t, err)
	assert.NotContains(t, html, "First")
	assert.Contains(t, html, "Second")
	assert.Contains(t, html, "Third")
	assert.Equal(t, 1, strings.Count(html, "<tr>"))
	assert.Equal(t, 1, strings.Count(html, "</tr>"))
	assert.NotContains(t, html, "colspan")
}

func TestRenderSectionRowsAndMissingSection(t *testing.T) {
	s := fixture(
		audience.TemplateRow{Type: audience.RowSection, Section: &audience.SectionRef{ID: audience.DefaultSectionID}, LayoutStyle: audience.LayoutRows},
		audience.TemplateRow{Type: audience.RowSection, Section: &audience.SectionRef{ID: "gone"}},
	)
	html, err := newRenderer(t, s).RenderEmailHTML(context.Background(), "aud1")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(html, "<tr>"))
	assert.Equal(t, 1, strings.Count(html, "width='35%'"), "only the item with a thumbnail")
	assert.Equal(t, 1, strings.Count(html, "<table"))
}

func TestRenderTwoColumns(t *testing.T) {
	s := fixture(audience.TemplateRow{
		Type: audience.RowTwoCol,
		Columns: &audience.Columns{
			Left:  &audience.TemplateRow{Type: audience.RowCode, Code: "<i>left</i>"},
			Right: &audience.TemplateRow{Type: audience.RowText, Text: "right"},
		},
	})
	html, err := newRenderer(t, s).RenderEmailHTML(context.Background(), "aud1")
	require.NoError(t, err)
	assert.Less(t, strings.Index(html, "<i>left</i>"), strings.Index(html, "right"))
	assert.Equal(t, 2, strings.Count(html, "width: 50%; float: left;"))
}

func TestRenderUnknownSettings(t *testing.T) {
	r, err := New(settingsMap{}, nil, nil)
	require.NoError(t, err)
	_, err = r.RenderEmailHTML(context.Background(), "nope")
	assert.Error(t, err)
}
