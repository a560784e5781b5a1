package api

import (
	"errors"
	"net/http"

	"github.com/ignite/campaignsync/internal/content"
	"github.com/ignite/campaignsync/internal/pkg/httputil"
)

// SearchContent finds site posts by title, or lists the newest.
//
//	GET /campaignpress/v1/content?terms=budget
func (h *Handlers) SearchContent(w http.ResponseWriter, r *http.Request) {
	if h.content == nil {
		httputil.OK(w, []content.Post{})
		return
	}
	posts, err := h.content.Search(r.Context(), r.URL.Query().Get("terms"))
	if errors.Is(err, content.ErrNoFeed) {
		httputil.OK(w, []content.Post{})
		return
	}
	if err != nil {
		h.log.Warn("content search failed", "error", err)
		httputil.Error(w, http.StatusBadGateway, "site feed unavailable")
		return
	}
	httputil.OK(w, posts)
}

// RemoveCampaigns deletes every managed campaign and its template.
//
//	POST /campaignpress/v1/campaigns/remove
func (h *Handlers) RemoveCampaigns(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.RemoveManagedCampaigns(r.Context())
	h.respondRemoved(w, r, "campaigns removed", removed, err)
}

// RemoveTemplates deletes every managed template.
//
//	POST /campaignpress/v1/templates/remove
func (h *Handlers) RemoveTemplates(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.RemoveManagedTemplates(r.Context())
	h.respondRemoved(w, r, "templates removed", removed, err)
}

// respondRemoved reports partial removals as a 502 carrying what did go.
func (h *Handlers) respondRemoved(w http.ResponseWriter, r *http.Request, msg string, removed []string, err error) {
	switch {
	case err != nil && removed == nil:
		h.fail(w, r, err, nil)
	case err != nil:
		h.log.Warn("removal partly failed", "path", r.URL.Path, "removed", len(removed), "error", err)
		httputil.ErrorDetails(w, http.StatusBadGateway, err.Error(), removed)
	default:
		httputil.OKMessage(w, msg, removed)
	}
}

// ResetAll deletes the plugin settings and every audience's settings.
//
//	POST /campaignpress/v1/reset
func (h *Handlers) ResetAll(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResetAll(r.Context()); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.log.Info("full reset")
	httputil.OKMessage(w, "all settings deleted", nil)
}
