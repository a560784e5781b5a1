package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/campaign"
	"github.com/ignite/campaignsync/internal/pkg/httputil"
	"github.com/ignite/campaignsync/internal/schedule"
)

// ListAudiences lists provider audiences merged with local settings.
//
//	GET /campaignpress/v1/audiences?force=true
func (h *Handlers) ListAudiences(w http.ResponseWriter, r *http.Request) {
	auds, err := h.svc.Audiences(r.Context(), queryBool(r, "force"))
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	httputil.OK(w, auds)
}

// GetAudience returns the audience's settings, registering its webhook on
// first read.
//
//	GET /campaignpress/v1/audiences/{audienceID}
func (h *Handlers) GetAudience(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Settings(r.Context(), chi.URLParam(r, "audienceID"))
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	httputil.OK(w, st)
}

// SaveAudience applies the editor's changes and reconciles the campaign.
//
//	POST /campaignpress/v1/audiences/{audienceID}
func (h *Handlers) SaveAudience(w http.ResponseWriter, r *http.Request) {
	var upd campaign.Update
	if !httputil.Decode(w, r, &upd) {
		return
	}
	h.respondResult(w, r)(h.svc.Reconciler().SaveSettings(r.Context(), chi.URLParam(r, "audienceID"), upd))
}

// Schedule books the next send.
//
//	POST /campaignpress/v1/audiences/{audienceID}/schedule
func (h *Handlers) Schedule(w http.ResponseWriter, r *http.Request) {
	h.respondResult(w, r)(h.svc.Reconciler().Schedule(r.Context(), chi.URLParam(r, "audienceID")))
}

// Unschedule cancels the pending send.
//
//	POST /campaignpress/v1/audiences/{audienceID}/unschedule
func (h *Handlers) Unschedule(w http.ResponseWriter, r *http.Request) {
	h.respondResult(w, r)(h.svc.Reconciler().Unschedule(r.Context(), chi.URLParam(r, "audienceID")))
}

// SyncTemplate re-renders and pushes the audience's template.
//
//	POST /campaignpress/v1/audiences/{audienceID}/template
func (h *Handlers) SyncTemplate(w http.ResponseWriter, r *http.Request) {
	h.respondResult(w, r)(h.svc.Reconciler().SyncTemplate(r.Context(), chi.URLParam(r, "audienceID")))
}

// SendPreview sends a test of the current email.
//
//	POST /campaignpress/v1/audiences/{audienceID}/preview
func (h *Handlers) SendPreview(w http.ResponseWriter, r *http.Request) {
	var req campaign.PreviewRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	h.respondResult(w, r)(h.svc.SendPreview(r.Context(), chi.URLParam(r, "audienceID"), req))
}

func (h *Handlers) respondResult(w http.ResponseWriter, r *http.Request) func(*campaign.Result, error) {
	return func(res *campaign.Result, err error) {
		if err != nil {
			h.fail(w, r, err, res)
			return
		}
		httputil.OK(w, res)
	}
}

// NextSendResponse is the computed next send time.
type NextSendResponse struct {
	AudienceID string    `json:"audience_id"`
	SendTime   string    `json:"send_time"`
	UTC        time.Time `json:"utc"`
}

// NextSend computes when the audience would send next.
//
//	GET /campaignpress/v1/audiences/{audienceID}/next-send
func (h *Handlers) NextSend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "audienceID")
	t, err := h.svc.NextSend(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	httputil.OK(w, NextSendResponse{AudienceID: id, SendTime: schedule.FormatSendTime(t), UTC: t.UTC()})
}

// ListSections lists the queue's sections with item counts.
//
//	GET /campaignpress/v1/audiences/{audienceID}/sections
func (h *Handlers) ListSections(w http.ResponseWriter, r *http.Request) {
	secs, err := h.svc.Sections(r.Context(), chi.URLParam(r, "audienceID"))
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	httputil.OK(w, secs)
}

// ItemRequest adds or moves one item.
type ItemRequest struct {
	SectionID string        `json:"section_id"`
	Item      audience.Item `json:"item"`
}

// UpsertItem puts an item into a section, taking it out of any other.
//
//	POST /campaignpress/v1/audiences/{audienceID}/items
func (h *Handlers) UpsertItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Item.ID == "" {
		httputil.BadRequest(w, "item id is required")
		return
	}
	if req.SectionID == "" {
		req.SectionID = audience.DefaultSectionID
	}
	st, err := h.svc.UpsertItem(r.Context(), chi.URLParam(r, "audienceID"), req.SectionID, req.Item)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	httputil.OK(w, st)
}

// RemoveItemResponse says how many audiences changed.
type RemoveItemResponse struct {
	ID      audience.ContentID `json:"id"`
	Removed int                `json:"removed"`
}

// RemoveItem takes an item out of the audience's queue.
//
//	DELETE /campaignpress/v1/audiences/{audienceID}/items?id=123
func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := audience.ContentID(strings.TrimSpace(r.URL.Query().Get("id")))
	if id == "" {
		httputil.BadRequest(w, "id is required")
		return
	}
	n, err := h.svc.RemoveItem(r.Context(), chi.URLParam(r, "audienceID"), id)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	httputil.OK(w, RemoveItemResponse{ID: id, Removed: n})
}

// ReorderRequest is the full new order of a section.
type ReorderRequest struct {
	IDs []audience.ContentID `json:"ids"`
}

// ReorderSection sets a section's item order.
//
//	PUT /campaignpress/v1/audiences/{audienceID}/sections/{sectionID}/order
func (h *Handlers) ReorderSection(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	st, err := h.svc.ReorderSection(r.Context(), chi.URLParam(r, "audienceID"), chi.URLParam(r, "sectionID"), req.IDs)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	httputil.OK(w, st)
}

// RefreshLinks re-resolves queued item links.
//
//	POST /campaignpress/v1/audiences/{audienceID}/refresh-links
func (h *Handlers) RefreshLinks(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RefreshLinks(r.Context(), chi.URLParam(r, "audienceID"))
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	httputil.OK(w, map[string]int{"updated": n})
}

// FindItem lists every audience section holding an item.
//
//	GET /campaignpress/v1/items/{contentID}
func (h *Handlers) FindItem(w http.ResponseWriter, r *http.Request) {
	locs, err := h.svc.FindItem(r.Context(), audience.ContentID(chi.URLParam(r, "contentID")))
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	httputil.OK(w, locs)
}

// RegisterWebhooks forces webhook registration for every audience.
//
//	POST /campaignpress/v1/audiences/webhook_registration
func (h *Handlers) RegisterWebhooks(w http.ResponseWriter, r *http.Request) {
	auds, err := h.svc.RegisterWebhooks(r.Context())
	if err != nil && auds == nil {
		h.fail(w, r, err, nil)
		return
	}
	if err != nil {
		httputil.ErrorDetails(w, http.StatusBadGateway, err.Error(), auds)
		return
	}
	httputil.OKMessage(w, "webhooks registered", auds)
}

// ResetAudiences overwrites every audience's settings with defaults.
//
//	POST /campaignpress/v1/audiences/reset
func (h *Handlers) ResetAudiences(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.ResetAudiences(r.Context())
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	httputil.OKMessage(w, "audience settings reset", ids)
}
