// Package webhook receives Mailchimp campaign events and turns a "sent"
// event into a send confirmation for the audience it was registered for.
package webhook

import (
	"context"
	"strings"

	"github.com/ignite/campaignsync/internal/campaign"
	"github.com/ignite/campaignsync/internal/pkg/logger"
)

// StatusSent is the campaign event status that triggers rotation.
const StatusSent = "sent"

// Payload is a Mailchimp webhook delivery.
type Payload struct {
	Type    string `json:"type"`
	FiredAt string `json:"fired_at"`
	Data    *Data  `json:"data"`
}

// Data carries the campaign fields of a delivery.
type Data struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	ListID  string `json:"list_id"`
}

// Confirmer records that a campaign went out.
type Confirmer interface {
	ConfirmSent(ctx context.Context, audienceID, campaignID, listID string) (*campaign.Result, error)
}

// Handler dispatches webhook payloads.
type Handler struct {
	confirmer Confirmer
	log       *logger.Logger
}

// NewHandler returns a Handler that confirms sends through c.
func NewHandler(c Confirmer) *Handler {
	return &Handler{confirmer: c, log: logger.With("component", "webhook")}
}

// Handle reports whether the payload changed the audience's state. The
// result can be true alongside an error when the send was recorded but the
// next one could not be scheduled. Payloads without data and statuses other
// than sent are skipped.
func (h *Handler) Handle(ctx context.Context, audienceID string, p Payload) (bool, error) {
	if p.Data == nil {
		h.log.Debug("webhook without data", "audience_id", audienceID, "type", p.Type)
		return false, nil
	}
	status := strings.TrimSpace(p.Data.Status)
	h.log.Info("webhook received", "audience_id", audienceID, "status", status, "campaign_id", p.Data.ID)
	if status != StatusSent {
		return false, nil
	}

	// A failed reschedule still reports handled: the queue was rotated.
	res, err := h.confirmer.ConfirmSent(ctx, audienceID, strings.TrimSpace(p.Data.ID), strings.TrimSpace(p.Data.ListID))
	return res != nil && res.Handled, err
}
