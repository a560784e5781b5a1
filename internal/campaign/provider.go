// Package campaign keeps one recurring remote campaign per audience in sync
// with local settings: it decides when to create, update, schedule and
// unschedule, and rotates queued content after each confirmed send.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound means the remote resource does not exist (HTTP 404).
	ErrNotFound = errors.New("campaign: remote resource not found")
	// ErrUnavailable means no provider credentials are configured; no
	// network call was made.
	ErrUnavailable = errors.New("campaign: provider unavailable")
)

// ProviderError is a failed provider request: status, message and the
// field-level details the provider returned.
type ProviderError struct {
	Status  int      `json:"status"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider request failed (status %d): %s", e.Status, e.Message)
	if len(e.Details) > 0 {
		msg += " [" + strings.Join(e.Details, "; ") + "]"
	}
	return msg
}

// Is lets errors.Is(err, ErrNotFound) match a 404.
func (e *ProviderError) Is(target error) bool {
	return target == ErrNotFound && e.Status == 404
}

// providerFailure is implemented by provider-specific error types.
type providerFailure interface {
	ProviderError() *ProviderError
}

// AsProviderError extracts the provider failure from err, if any.
// ErrUnavailable maps to status 0.
func AsProviderError(err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	var pf providerFailure
	if errors.As(err, &pf) {
		return pf.ProviderError()
	}
	if errors.Is(err, ErrUnavailable) {
		return &ProviderError{Message: "provider is not configured"}
	}
	return &ProviderError{Message: err.Error()}
}

// Audience is a provider mailing list.
type Audience struct {
	ID               string     `json:"id"`
	WebID            int64      `json:"web_id,omitempty"`
	Title            string     `json:"title"`
	SubscriberCount  int        `json:"subscriber_count"`
	CampaignLastSent *time.Time `json:"campaign_last_sent,omitempty"`
	Segments         []Segment  `json:"segments,omitempty"`
}

// Segment is a saved subset of an audience.
type Segment struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

// Remote campaign statuses.
const (
	StatusSave     = "save"
	StatusPaused   = "paused"
	StatusSchedule = "schedule"
	StatusSending  = "sending"
	StatusSent     = "sent"
)

// RemoteCampaign is a campaign as the provider reports it.
type RemoteCampaign struct {
	ID         string     `json:"id"`
	WebID      int64      `json:"web_id,omitempty"`
	Status     string     `json:"status"`
	AudienceID string     `json:"audience_id"`
	Title      string     `json:"title"`
	Subject    string     `json:"subject"`
	FolderID   string     `json:"folder_id,omitempty"`
	TemplateID string     `json:"template_id,omitempty"`
	SendTime   *time.Time `json:"send_time,omitempty"`
}

// Template is a stored HTML template.
type Template struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Folder is a campaign folder.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Provider is the email-marketing service the engine drives. Calls that
// fail return ErrUnavailable, an error matching ErrNotFound, or a
// *ProviderError-carrying error.
type Provider interface {
	GetAudiences(ctx context.Context, force bool) ([]Audience, error)
	GetAudience(ctx context.Context, id string) (*Audience, error)

	GetCampaign(ctx context.Context, id string) (*RemoteCampaign, error)
	GetCampaigns(ctx context.Context, force bool, statuses ...string) ([]RemoteCampaign, error)
	CreateCampaign(ctx context.Context, audienceID, subject string, isTest bool, folderID string) (*RemoteCampaign, error)
	UpdateCampaign(ctx context.Context, id, audienceID, subject string) (*RemoteCampaign, error)
	RemoveCampaign(ctx context.Context, id string) error
	ScheduleCampaign(ctx context.Context, id string, sendTime time.Time) error
	UnscheduleCampaign(ctx context.Context, id string) error
	SendTestEmail(ctx context.Context, campaignID string, recipients []string) error
	ClearDrafts(ctx context.Context, audienceID string) (int, error)

	GetTemplate(ctx context.Context, id string) (*Template, error)
	GetTemplates(ctx context.Context, force bool) ([]Template, error)
	CreateTemplate(ctx context.Context, name, html string) (*Template, error)
	UpdateTemplate(ctx context.Context, id, name, html string) (*Template, error)
	RemoveTemplate(ctx context.Context, id string) error
	AttachTemplate(ctx context.Context, campaignID, templateID string) error

	CreateCampaignFolder(ctx context.Context, name string) (*Folder, error)

	RegisterWebhook(ctx context.Context, audienceID, callbackURL string) error
	UnregisterWebhook(ctx context.Context, audienceID string) error
}

// Renderer produces the email HTML for an audience.
type Renderer interface {
	RenderEmailHTML(ctx context.Context, audienceID string) (string, error)
}
