// Package render turns an audience's template layout and queued content
// into the email HTML stored as the campaign template.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/osteele/liquid"

	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/campaign"
	"github.com/ignite/campaignsync/internal/pkg/clock"
	"github.com/ignite/campaignsync/internal/pkg/logger"
)

// SettingsSource loads audience settings.
type SettingsSource interface {
	Get(ctx context.Context, audienceID string) (*audience.Settings, error)
}

// TitleSource looks up the provider-side audience.
type TitleSource interface {
	GetAudience(ctx context.Context, id string) (*campaign.Audience, error)
}

// Renderer renders email HTML with Liquid layouts. Text and code rows are
// themselves Liquid, so editors can use {{ audience_title }},
// {{ total_content_items }} and {{ date_today }}.
type Renderer struct {
	settings SettingsSource
	titles   TitleSource
	clock    clock.Clock
	engine   *liquid.Engine
	layouts  map[string]*liquid.Template
	log      *logger.Logger
}

var _ campaign.Renderer = (*Renderer)(nil)

// New parses the layouts. titles may be nil, in which case the audience
// id stands in for its title.
func New(settings SettingsSource, titles TitleSource, clk clock.Clock) (*Renderer, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	r := &Renderer{
		settings: settings,
		titles:   titles,
		clock:    clk,
		engine:   liquid.NewEngine(),
		layouts:  map[string]*liquid.Template{},
		log:      logger.With("component", "render"),
	}
	r.engine.RegisterFilter("attr", func(s string) string {
		return strings.NewReplacer(`"`, "&quot;", "'", "&#39;", "<", "&lt;", ">", "&gt;").Replace(s)
	})
	for name, src := range layoutSources {
		tpl, err := r.engine.ParseString(src)
		if err != nil {
			return nil, fmt.Errorf("parsing %s layout: %w", name, err)
		}
		r.layouts[name] = tpl
	}
	return r, nil
}

// RenderEmailHTML renders the audience's layout with its current queue.
func (r *Renderer) RenderEmailHTML(ctx context.Context, audienceID string) (string, error) {
	s, err := r.settings.Get(ctx, audienceID)
	if err != nil {
		return "", fmt.Errorf("loading settings for %s: %w", audienceID, err)
	}
	return r.Render(ctx, audienceID, s)
}

// Render renders s without loading it.
func (r *Renderer) Render(ctx context.Context, audienceID string, s *audience.Settings) (string, error) {
	tokens := liquid.Bindings{
		"audience_title":      r.title(ctx, audienceID),
		"total_content_items": s.TotalContentItems(),
		"date_today":          r.clock.Now().In(s.Timezone.Location()).Format(campaign.DateTodayLayout),
	}

	var rows strings.Builder
	for _, row := range s.Campaign.EmailTemplate.TemplateContent {
		out, err := r.row(row, s, tokens)
		if err != nil {
			return "", err
		}
		rows.WriteString(out)
	}

	width := "600px"
	if s.Campaign.EmailTemplate.WidthType == audience.WidthFluid {
		width = "90%"
	}
	return r.layout("document", liquid.Bindings{"width": width, "rows": rows.String()})
}

func (r *Renderer) title(ctx context.Context, audienceID string) string {
	if r.titles == nil {
		return audienceID
	}
	a, err := r.titles.GetAudience(ctx, audienceID)
	if err != nil || a.Title == "" {
		r.log.Debug("audience title unavailable", "audience_id", audienceID, "error", err)
		return audienceID
	}
	return a.Title
}

func (r *Renderer) layout(name string, b liquid.Bindings) (string, error) {
	out, err := r.layouts[name].RenderString(b)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return out, nil
}

// userContent renders editor-written Liquid; text that does not parse is
// used as written.
func (r *Renderer) userContent(src string, tokens liquid.Bindings) string {
	if !strings.Contains(src, "{{") && !strings.Contains(src, "{%") {
		return src
	}
	out, err := r.engine.ParseAndRenderString(src, tokens)
	if err != nil {
		r.log.Debug("row content is not valid liquid", "error", err)
		return src
	}
	return out
}

func (r *Renderer) row(row audience.TemplateRow, s *audience.Settings, tokens liquid.Bindings) (string, error) {
	switch row.Type {
	case audience.RowText:
		return r.layout("text", liquid.Bindings{"css_id": row.CSSID, "text": r.userContent(row.Text, tokens)})
	case audience.RowCode:
		return r.userContent(row.Code, tokens), nil
	case audience.RowSpacer:
		return r.layout("spacer", liquid.Bindings{"height": row.Height})
	case audience.RowImage:
		return r.image(row)
	case audience.RowSection:
		return r.section(row, s)
	case audience.RowTwoCol:
		var left, right string
		var err error
		if row.Columns != nil && row.Columns.Left != nil {
			if left, err = r.row(*row.Columns.Left, s, tokens); err != nil {
				return "", err
			}
		}
		if row.Columns != nil && row.Columns.Right != nil {
			if right, err = r.row(*row.Columns.Right, s, tokens); err != nil {
				return "", err
			}
		}
		return r.layout("two_col", liquid.Bindings{"left": left, "right": right})
	default:
		return "", nil
	}
}

var imageWidths = map[string]string{
	"Full":        "100%",
	"Medium":      "60%",
	"Small":       "30%",
	"Extra Small": "10%",
}

func (r *Renderer) image(row audience.TemplateRow) (string, error) {
	if row.Image == nil || row.Image.URL == "" {
		return "", nil
	}
	width, padding := "80%", "10px 10px 10px"
	if row.ImageWidth != nil {
		if w, ok := imageWidths[row.ImageWidth.Title]; ok {
			width = w
		}
		if row.ImageWidth.Title == "Full" {
			padding = "0"
		}
	}
	return r.layout("image", liquid.Bindings{
		"url":     row.Image.URL,
		"alt":     row.Image.Alt,
		"link":    row.ImageLink,
		"width":   width,
		"padding": padding,
	})
}

// section renders the queued items of the referenced section between
// range_from (inclusive, default 0) and range_to (exclusive, default 100).
func (r *Renderer) section(row audience.TemplateRow, s *audience.Settings) (string, error) {
	if row.Section == nil {
		return "", nil
	}
	sec, ok := s.Queue.Section(row.Section.ID)
	if !ok {
		return "", nil
	}
	from, to := 0, 100
	if row.RangeFrom != nil {
		from = *row.RangeFrom
	}
	if row.RangeTo != nil {
		to = *row.RangeTo
	}
	if from < 0 {
		from = 0
	}
	if to > len(sec.Items) {
		to = len(sec.Items)
	}
	var items []audience.Item
	if from < to {
		items = sec.Items[from:to]
	}

	style := row.LayoutStyle
	if style == "" {
		style = audience.LayoutLargeFirst
	}
	if style == audience.LayoutRows {
		return r.layout("section_rows", liquid.Bindings{"items": itemBindings(items)})
	}
	return r.layout("section_grid", liquid.Bindings{"cells": gridCells(items, style == audience.LayoutLargeFirst)})
}

func itemBindings(items []audience.Item) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]interface{}{
			"id":        string(it.ID),
			"title":     it.Title,
			"excerpt":   it.Excerpt,
			"link":      it.LinkToContent,
			"thumbnail": it.ThumbnailURL,
		})
	}
	return out
}

// gridCells lays items out two per row. With largeFirst the first item
// takes a full-width row of its own.
func gridCells(items []audience.Item, largeFirst bool) []map[string]interface{} {
	cells := itemBindings(items)
	pos := 0
	for i, c := range cells {
		if largeFirst && i == 0 {
			c["full"], c["open_row"], c["close_row"] = true, true, true
			continue
		}
		c["full"] = false
		c["open_row"] = pos%2 == 0
		c["close_row"] = pos%2 == 1 || i == len(cells)-1
		pos++
	}
	return cells
}
