package webhook

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaignsync/internal/pkg/httputil"
)

// maxBodyBytes caps a webhook delivery.
const maxBodyBytes = 1 << 20

// Response is the body answered to Mailchimp.
type Response struct {
	AudienceID string `json:"audience_id"`
	Handled    bool   `json:"handled"`
}

// ServeHTTP handles GET validation probes and POSTed deliveries. The
// audience comes from the {audienceID} route parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	audienceID := chi.URLParam(r, "audienceID")
	if audienceID == "" {
		httputil.BadRequest(w, "audience id is required")
		return
	}

	// Mailchimp checks the URL with a GET before saving the webhook.
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		httputil.OK(w, Response{AudienceID: audienceID})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	p, err := decodePayload(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	handled, err := h.Handle(r.Context(), audienceID, p)
	if err != nil {
		h.log.Error("webhook handling failed", "audience_id", audienceID, "handled", handled, "error", err)
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, Response{AudienceID: audienceID, Handled: handled})
}

func decodePayload(r *http.Request) (Payload, error) {
	var p Payload
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return p, fmt.Errorf("invalid JSON: %w", err)
		}
		return p, nil
	}

	if err := r.ParseForm(); err != nil {
		return p, fmt.Errorf("invalid form body: %w", err)
	}
	return payloadFromForm(r.PostForm), nil
}

// payloadFromForm reads Mailchimp's bracketed form keys (data[status]=sent).
func payloadFromForm(form url.Values) Payload {
	p := Payload{Type: form.Get("type"), FiredAt: form.Get("fired_at")}
	data := Data{
		ID:      form.Get("data[id]"),
		Subject: form.Get("data[subject]"),
		Status:  form.Get("data[status]"),
		Reason:  form.Get("data[reason]"),
		ListID:  form.Get("data[list_id]"),
	}
	if data != (Data{}) {
		p.Data = &data
	}
	return p
}
