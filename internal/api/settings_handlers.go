package api

import (
	"net/http"

	"github.com/ignite/campaignsync/internal/activity"
	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/pkg/httputil"
	"github.com/ignite/campaignsync/internal/pkg/logger"
)

func redacted(p *audience.PluginSettings) *audience.PluginSettings {
	out := *p
	out.APIKey = logger.RedactAPIKey(p.APIKey)
	return &out
}

// GetSettings returns the plugin settings with the API key masked.
//
//	GET /campaignpress/v1/settings
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.Plugin(r.Context())
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	httputil.OK(w, redacted(p))
}

// UpdateSettings applies a partial update to the plugin settings.
//
//	POST /campaignpress/v1/settings
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch audience.PluginPatch
	if !httputil.Decode(w, r, &patch) {
		return
	}
	p, err := h.repo.UpdatePlugin(r.Context(), patch)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	httputil.OKMessage(w, "settings saved", redacted(p))
}

// GetLogs lists recent activity, newest first.
//
//	GET /campaignpress/v1/settings/logs?limit=50
func (h *Handlers) GetLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.logs.List(r.Context(), queryInt(r, "limit", activity.DefaultKeep))
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	httputil.OK(w, entries)
}
