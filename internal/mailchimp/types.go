package mailchimp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/campaignsync/internal/campaign"
)

// APIError is the problem-detail document Mailchimp returns on failure.
type APIError struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail"`
	Instance string       `json:"instance"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("mailchimp API error (status %d): %s", e.Status, e.message())
	if len(e.Errors) > 0 {
		msg += " [" + strings.Join(e.details(), "; ") + "]"
	}
	return msg
}

func (e *APIError) message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Title
}

func (e *APIError) details() []string {
	out := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Field != "" {
			out = append(out, fe.Field+": "+fe.Message)
		} else {
			out = append(out, fe.Message)
		}
	}
	return out
}

// ProviderError converts the failure for reporting to editors.
func (e *APIError) ProviderError() *campaign.ProviderError {
	return &campaign.ProviderError{Status: e.Status, Message: e.message(), Details: e.details()}
}

// Is matches campaign.ErrNotFound on a 404.
func (e *APIError) Is(target error) bool {
	return target == campaign.ErrNotFound && e.Status == 404
}

// timestamp decodes Mailchimp's optional RFC3339 fields, which arrive as
// "" when unset.
type timestamp struct {
	t *time.Time
}

func (ts *timestamp) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil || s == "" {
		ts.t = nil
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("parsing time %q: %w", s, err)
	}
	parsed = parsed.UTC()
	ts.t = &parsed
	return nil
}

type listStats struct {
	MemberCount      int       `json:"member_count"`
	CampaignLastSent timestamp `json:"campaign_last_sent"`
}

type listResource struct {
	ID    string    `json:"id"`
	WebID int64     `json:"web_id"`
	Name  string    `json:"name"`
	Stats listStats `json:"stats"`
}

type listsResponse struct {
	Lists      []listResource `json:"lists"`
	TotalItems int            `json:"total_items"`
}

type segmentsResponse struct {
	Segments []campaign.Segment `json:"segments"`
}

type campaignSettings struct {
	SubjectLine string `json:"subject_line"`
	Title       string `json:"title"`
	FromName    string `json:"from_name,omitempty"`
	ReplyTo     string `json:"reply_to,omitempty"`
	FolderID    string `json:"folder_id,omitempty"`
	TemplateID  int64  `json:"template_id,omitempty"`
}

type campaignRecipients struct {
	ListID string `json:"list_id"`
}

type campaignResource struct {
	ID         string             `json:"id"`
	WebID      int64              `json:"web_id"`
	Type       string             `json:"type"`
	Status     string             `json:"status"`
	SendTime   timestamp          `json:"send_time"`
	Recipients campaignRecipients `json:"recipients"`
	Settings   campaignSettings   `json:"settings"`
}

func (c campaignResource) remote() campaign.RemoteCampaign {
	rc := campaign.RemoteCampaign{
		ID:         c.ID,
		WebID:      c.WebID,
		Status:     c.Status,
		AudienceID: c.Recipients.ListID,
		Title:      c.Settings.Title,
		Subject:    c.Settings.SubjectLine,
		FolderID:   c.Settings.FolderID,
		SendTime:   c.SendTime.t,
	}
	if c.Settings.TemplateID != 0 {
		rc.TemplateID = strconv.FormatInt(c.Settings.TemplateID, 10)
	}
	return rc
}

type campaignsResponse struct {
	Campaigns  []campaignResource `json:"campaigns"`
	TotalItems int                `json:"total_items"`
}

// campaignRequest is the create/update body.
type campaignRequest struct {
	Type       string             `json:"type"`
	Settings   campaignSettings   `json:"settings"`
	Recipients campaignRecipients `json:"recipients"`
}

type templateResource struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (t templateResource) template() campaign.Template {
	return campaign.Template{ID: strconv.FormatInt(t.ID, 10), Name: t.Name}
}

type templatesResponse struct {
	Templates []templateResource `json:"templates"`
}

type templateRequest struct {
	Name string `json:"name"`
	HTML string `json:"html"`
}

type contentRequest struct {
	Template struct {
		ID int64 `json:"id"`
	} `json:"template"`
}

type folderResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type foldersResponse struct {
	Folders []folderResource `json:"folders"`
}

type scheduleRequest struct {
	ScheduleTime string `json:"schedule_time"`
}

type testEmailRequest struct {
	TestEmails []string `json:"test_emails"`
	SendType   string   `json:"send_type"`
}

type webhookEvents struct {
	Campaign bool `json:"campaign"`
}

type webhookRequest struct {
	URL    string        `json:"url"`
	Events webhookEvents `json:"events"`
}

type webhookResource struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	ListID string `json:"list_id"`
}

type webhooksResponse struct {
	Webhooks []webhookResource `json:"webhooks"`
}

// templateID parses a template id; Mailchimp keys templates by integer.
func templateID(id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid template id %q: %w", id, err)
	}
	return n, nil
}
