package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ignite/campaignsync/internal/activity"
	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/campaign"
	"github.com/ignite/campaignsync/internal/content"
	"github.com/ignite/campaignsync/internal/pkg/httputil"
	"github.com/ignite/campaignsync/internal/pkg/logger"
	"github.com/ignite/campaignsync/internal/schedule"
)

// ContentSearcher finds site content for editors to queue.
type ContentSearcher interface {
	Search(ctx context.Context, terms string) ([]content.Post, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	svc     *campaign.Service
	repo    *audience.Repository
	logs    activity.Log
	content ContentSearcher
	webhook http.Handler
	health  *HealthChecker
	log     *logger.Logger
}

// NewHandlers creates a new Handlers instance. logs, posts and webhook may
// be nil; the matching routes then answer with empty results or are not
// mounted.
func NewHandlers(svc *campaign.Service, logs activity.Log, posts ContentSearcher, webhook http.Handler) *Handlers {
	if logs == nil {
		logs = activity.Nop{}
	}
	return &Handlers{
		svc:     svc,
		repo:    svc.Repository(),
		logs:    logs,
		content: posts,
		webhook: webhook,
		health:  NewHealthChecker(),
		log:     logger.With("component", "api"),
	}
}

// SetHealthChecker replaces the default health checker.
func (h *Handlers) SetHealthChecker(hc *HealthChecker) { h.health = hc }

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.health.HandleHealth(w, r)
}

// fail maps an operation error onto a status code. res, when present,
// is sent as details so the editor can show what did happen.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error, res *campaign.Result) {
	var details any
	if res != nil {
		details = res
	}
	switch {
	case isInvalid(err):
		httputil.ErrorDetails(w, http.StatusBadRequest, err.Error(), details)
	case errors.Is(err, campaign.ErrUnavailable):
		httputil.ErrorDetails(w, http.StatusServiceUnavailable, "mailchimp is not configured", details)
	case errors.Is(err, campaign.ErrNotFound):
		httputil.ErrorDetails(w, http.StatusNotFound, providerMessage(err), details)
	default:
		if pe := providerError(err); pe != nil {
			h.log.Warn("provider request failed", "path", r.URL.Path, "status", pe.Status, "error", pe.Message)
			if details == nil {
				details = pe
			}
			httputil.ErrorDetails(w, http.StatusBadGateway, pe.Message, details)
			return
		}
		httputil.InternalError(w, err)
	}
}

func isInvalid(err error) bool {
	for _, target := range []error{
		audience.ErrInvalidSettings,
		audience.ErrSectionNotFound,
		audience.ErrItemNotFound,
		audience.ErrDuplicateID,
		schedule.ErrUnknownFrequency,
		schedule.ErrIncompleteRule,
		campaign.ErrNoRecipients,
		campaign.ErrInactive,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// providerError returns the provider's failure when err came from a
// provider call.
func providerError(err error) *campaign.ProviderError {
	var pe *campaign.ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	var pf interface{ ProviderError() *campaign.ProviderError }
	if errors.As(err, &pf) {
		return pf.ProviderError()
	}
	return nil
}

func providerMessage(err error) string {
	if pe := providerError(err); pe != nil && pe.Message != "" {
		return pe.Message
	}
	return "not found"
}

// queryBool reads a boolean query parameter; anything unparsable is false.
func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
