// Package mailchimp implements campaign.Provider against the Mailchimp
// Marketing API v3.
package mailchimp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ignite/campaignsync/internal/cache"
	"github.com/ignite/campaignsync/internal/campaign"
	"github.com/ignite/campaignsync/internal/config"
	"github.com/ignite/campaignsync/internal/pkg/httpretry"
	"github.com/ignite/campaignsync/internal/pkg/logger"
)

// Cache keys for listings.
const (
	KeyAudiences = "mailchimp:audiences"
	KeyCampaigns = "mailchimp:campaigns"
	KeyTemplates = "mailchimp:templates"
)

// pageSize matches the largest page Mailchimp serves.
const pageSize = 1000

// DefaultStatuses are the campaign statuses listed when none are given.
var DefaultStatuses = []string{campaign.StatusSave, campaign.StatusPaused, campaign.StatusSchedule}

// Sender supplies the from name and reply-to address for new campaigns.
type Sender func(ctx context.Context) (name, email string)

// Client is a Mailchimp API client
type Client struct {
	baseURL    string
	apiKey     string
	configured bool
	httpClient httpretry.HTTPDoer
	caches     *cache.Bucket
	sender     Sender
	log        *logger.Logger
}

var _ campaign.Provider = (*Client)(nil)

// NewClient creates a new Mailchimp API client. Listings are cached in
// caches; nil keeps them in memory for an hour.
func NewClient(cfg config.MailchimpConfig, caches *cache.Bucket) *Client {
	var base httpretry.HTTPDoer = &http.Client{Timeout: cfg.Timeout()}
	if cfg.OAuthAccessToken != "" {
		base = &http.Client{
			Timeout: cfg.Timeout(),
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.OAuthAccessToken, TokenType: "Bearer"}),
				Base:   http.DefaultTransport,
			},
		}
	}
	if caches == nil {
		caches = cache.NewBucket(cache.NewMemory(), nil, time.Hour)
	}
	fromName, fromEmail := cfg.FromName, cfg.FromEmail
	return &Client{
		baseURL:    cfg.Endpoint(),
		apiKey:     cfg.APIKey,
		configured: cfg.Configured() && cfg.Endpoint() != "",
		httpClient: httpretry.NewRetryClient(base, cfg.ReadRetries),
		caches:     caches,
		sender: func(context.Context) (string, string) {
			return fromName, fromEmail
		},
		log: logger.With("component", "mailchimp"),
	}
}

// SetSender replaces the from name/reply-to lookup.
func (c *Client) SetSender(s Sender) {
	if s != nil {
		c.sender = s
	}
}

// Configured reports whether requests will be attempted.
func (c *Client) Configured() bool { return c.configured }

// doRequest makes an HTTP request to the Mailchimp API. A non-2xx
// response is returned as *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, payload interface{}) ([]byte, error) {
	if !c.configured {
		return nil, campaign.ErrUnavailable
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if c.apiKey != "" {
		req.SetBasicAuth("anystring", c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{}
		if jerr := json.Unmarshal(respBody, apiErr); jerr != nil || (apiErr.Title == "" && apiErr.Detail == "") {
			apiErr.Title = http.StatusText(resp.StatusCode)
			apiErr.Detail = strings.TrimSpace(string(respBody))
		}
		apiErr.Status = resp.StatusCode
		c.log.Warn("mailchimp request failed", "method", method, "path", path, "status", apiErr.Status, "detail", apiErr.message())
		return nil, apiErr
	}

	return respBody, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	body, err := c.doRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	body, err := c.doRequest(ctx, method, path, nil, payload)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Client) invalidate(ctx context.Context, key string) {
	if err := c.caches.Invalidate(ctx, key); err != nil {
		c.log.Warn("cache invalidate failed", "key", key, "error", err)
	}
}

// Ping verifies the credentials.
func (c *Client) Ping(ctx context.Context) error {
	var out struct {
		HealthStatus string `json:"health_status"`
	}
	if err := c.getJSON(ctx, "/ping", nil, &out); err != nil {
		return fmt.Errorf("pinging mailchimp: %w", err)
	}
	return nil
}

//
// Audiences
//

// GetAudiences lists every audience with its segments.
func (c *Client) GetAudiences(ctx context.Context, force bool) ([]campaign.Audience, error) {
	if !c.configured {
		return nil, campaign.ErrUnavailable
	}
	auds, err := cache.Load(ctx, c.caches, KeyAudiences, force, c.fetchAudiences)
	if err != nil && auds == nil {
		return nil, err
	}
	if err != nil {
		c.log.Warn("audience cache write failed", "error", err)
	}
	return auds, nil
}

func (c *Client) fetchAudiences(ctx context.Context) ([]campaign.Audience, error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(pageSize))
	var lists listsResponse
	if err := c.getJSON(ctx, "/lists", params, &lists); err != nil {
		return nil, fmt.Errorf("fetching audiences: %w", err)
	}

	out := make([]campaign.Audience, 0, len(lists.Lists))
	for _, l := range lists.Lists {
		var segs segmentsResponse
		if err := c.getJSON(ctx, "/lists/"+url.PathEscape(l.ID)+"/segments", params, &segs); err != nil {
			return nil, fmt.Errorf("fetching segments for %s: %w", l.ID, err)
		}
		if segs.Segments == nil {
			segs.Segments = []campaign.Segment{}
		}
		out = append(out, campaign.Audience{
			ID:               l.ID,
			WebID:            l.WebID,
			Title:            l.Name,
			SubscriberCount:  l.Stats.MemberCount,
			CampaignLastSent: l.Stats.CampaignLastSent.t,
			Segments:         segs.Segments,
		})
	}
	return out, nil
}

// GetAudience finds one audience in the listing, refetching once on a miss.
func (c *Client) GetAudience(ctx context.Context, id string) (*campaign.Audience, error) {
	for _, force := range []bool{false, true} {
		auds, err := c.GetAudiences(ctx, force)
		if err != nil {
			return nil, err
		}
		for i := range auds {
			if auds[i].ID == id {
				return &auds[i], nil
			}
		}
	}
	return nil, &APIError{Status: http.StatusNotFound, Title: "Resource Not Found", Detail: "audience " + id + " not found"}
}

//
// Campaigns
//

// GetCampaign fetches one campaign.
func (c *Client) GetCampaign(ctx context.Context, id string) (*campaign.RemoteCampaign, error) {
	if id == "" {
		return nil, &APIError{Status: http.StatusNotFound, Title: "Resource Not Found", Detail: "empty campaign id"}
	}
	var res campaignResource
	if err := c.getJSON(ctx, "/campaigns/"+url.PathEscape(id), nil, &res); err != nil {
		return nil, err
	}
	rc := res.remote()
	return &rc, nil
}

// GetCampaigns lists campaigns in the given statuses, DefaultStatuses when
// none are given. Only the default listing is cached.
func (c *Client) GetCampaigns(ctx context.Context, force bool, statuses ...string) ([]campaign.RemoteCampaign, error) {
	if !c.configured {
		return nil, campaign.ErrUnavailable
	}
	if len(statuses) > 0 {
		return c.fetchCampaigns(ctx, statuses)
	}
	list, err := cache.Load(ctx, c.caches, KeyCampaigns, force, func(ctx context.Context) ([]campaign.RemoteCampaign, error) {
		return c.fetchCampaigns(ctx, DefaultStatuses)
	})
	if err != nil && list == nil {
		return nil, err
	}
	if err != nil {
		c.log.Warn("campaign cache write failed", "error", err)
	}
	return list, nil
}

// fetchCampaigns asks for each status separately; the API filters by a
// single status per request.
func (c *Client) fetchCampaigns(ctx context.Context, statuses []string) ([]campaign.RemoteCampaign, error) {
	out := []campaign.RemoteCampaign{}
	for _, status := range statuses {
		params := url.Values{}
		params.Set("count", strconv.Itoa(pageSize))
		params.Set("status", status)
		var res campaignsResponse
		if err := c.getJSON(ctx, "/campaigns", params, &res); err != nil {
			return nil, fmt.Errorf("fetching %s campaigns: %w", status, err)
		}
		for _, rc := range res.Campaigns {
			out = append(out, rc.remote())
		}
	}
	return out, nil
}

func (c *Client) campaignBody(ctx context.Context, audienceID, subject, title, folderID string) campaignRequest {
	fromName, fromEmail := c.sender(ctx)
	return campaignRequest{
		Type: "regular",
		Settings: campaignSettings{
			SubjectLine: subject,
			Title:       title,
			FromName:    fromName,
			ReplyTo:     fromEmail,
			FolderID:    folderID,
		},
		Recipients: campaignRecipients{ListID: audienceID},
	}
}

// CreateCampaign creates a regular campaign for the audience. Test
// campaigns get the preview subject prefix and title marker.
func (c *Client) CreateCampaign(ctx context.Context, audienceID, subject string, isTest bool, folderID string) (*campaign.RemoteCampaign, error) {
	subject = campaign.CampaignSubject(subject, isTest)
	body := c.campaignBody(ctx, audienceID, subject, campaign.CampaignTitle(subject, isTest), folderID)

	var res campaignResource
	if err := c.sendJSON(ctx, http.MethodPost, "/campaigns", body, &res); err != nil {
		return nil, fmt.Errorf("creating campaign for %s: %w", audienceID, err)
	}
	c.invalidate(ctx, KeyCampaigns)
	c.log.Info("campaign created", "audience_id", audienceID, "campaign_id", res.ID, "test", isTest)
	rc := res.remote()
	return &rc, nil
}

// UpdateCampaign rewrites the subject, title and sender.
func (c *Client) UpdateCampaign(ctx context.Context, id, audienceID, subject string) (*campaign.RemoteCampaign, error) {
	body := c.campaignBody(ctx, audienceID, subject, campaign.CampaignTitle(subject, false), "")

	var res campaignResource
	if err := c.sendJSON(ctx, http.MethodPatch, "/campaigns/"+url.PathEscape(id), body, &res); err != nil {
		return nil, fmt.Errorf("updating campaign %s: %w", id, err)
	}
	rc := res.remote()
	return &rc, nil
}

// RemoveCampaign deletes a campaign.
func (c *Client) RemoveCampaign(ctx context.Context, id string) error {
	if err := c.sendJSON(ctx, http.MethodDelete, "/campaigns/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("removing campaign %s: %w", id, err)
	}
	c.invalidate(ctx, KeyCampaigns)
	return nil
}

// ScheduleCampaign schedules delivery at sendTime, sent as UTC.
func (c *Client) ScheduleCampaign(ctx context.Context, id string, sendTime time.Time) error {
	body := scheduleRequest{ScheduleTime: sendTime.UTC().Format(time.RFC3339)}
	if err := c.sendJSON(ctx, http.MethodPost, "/campaigns/"+url.PathEscape(id)+"/actions/schedule", body, nil); err != nil {
		return fmt.Errorf("scheduling campaign %s for %s: %w", id, body.ScheduleTime, err)
	}
	c.invalidate(ctx, KeyCampaigns)
	return nil
}

// UnscheduleCampaign returns a scheduled campaign to draft.
func (c *Client) UnscheduleCampaign(ctx context.Context, id string) error {
	if err := c.sendJSON(ctx, http.MethodPost, "/campaigns/"+url.PathEscape(id)+"/actions/unschedule", nil, nil); err != nil {
		return fmt.Errorf("unscheduling campaign %s: %w", id, err)
	}
	c.invalidate(ctx, KeyCampaigns)
	return nil
}

// SendTestEmail sends the HTML version of a campaign to recipients.
func (c *Client) SendTestEmail(ctx context.Context, campaignID string, recipients []string) error {
	body := testEmailRequest{TestEmails: recipients, SendType: "html"}
	if err := c.sendJSON(ctx, http.MethodPost, "/campaigns/"+url.PathEscape(campaignID)+"/actions/test", body, nil); err != nil {
		return fmt.Errorf("sending test email for %s: %w", campaignID, err)
	}
	return nil
}

// ClearDrafts removes the audience's managed campaigns still in draft or
// paused, returning how many went.
func (c *Client) ClearDrafts(ctx context.Context, audienceID string) (int, error) {
	drafts, err := c.GetCampaigns(ctx, true, campaign.StatusSave, campaign.StatusPaused)
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, d := range drafts {
		if d.AudienceID != audienceID || !campaign.IsManagedTitle(d.Title) {
			continue
		}
		if err := c.RemoveCampaign(ctx, d.ID); err != nil && !errors.Is(err, campaign.ErrNotFound) {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

//
// Templates
//

// GetTemplate fetches one template.
func (c *Client) GetTemplate(ctx context.Context, id string) (*campaign.Template, error) {
	tid, err := templateID(id)
	if err != nil {
		return nil, &APIError{Status: http.StatusNotFound, Title: "Resource Not Found", Detail: err.Error()}
	}
	var res templateResource
	if err := c.getJSON(ctx, "/templates/"+strconv.FormatInt(tid, 10), nil, &res); err != nil {
		return nil, err
	}
	t := res.template()
	return &t, nil
}

// GetTemplates lists the account's user templates.
func (c *Client) GetTemplates(ctx context.Context, force bool) ([]campaign.Template, error) {
	if !c.configured {
		return nil, campaign.ErrUnavailable
	}
	list, err := cache.Load(ctx, c.caches, KeyTemplates, force, func(ctx context.Context) ([]campaign.Template, error) {
		params := url.Values{}
		params.Set("count", strconv.Itoa(pageSize))
		params.Set("type", "user")
		var res templatesResponse
		if err := c.getJSON(ctx, "/templates", params, &res); err != nil {
			return nil, fmt.Errorf("fetching templates: %w", err)
		}
		out := make([]campaign.Template, 0, len(res.Templates))
		for _, t := range res.Templates {
			out = append(out, t.template())
		}
		return out, nil
	})
	if err != nil && list == nil {
		return nil, err
	}
	if err != nil {
		c.log.Warn("template cache write failed", "error", err)
	}
	return list, nil
}

// CreateTemplate stores a new HTML template.
func (c *Client) CreateTemplate(ctx context.Context, name, html string) (*campaign.Template, error) {
	var res templateResource
	if err := c.sendJSON(ctx, http.MethodPost, "/templates", templateRequest{Name: name, HTML: html}, &res); err != nil {
		return nil, fmt.Errorf("creating template %q: %w", name, err)
	}
	c.invalidate(ctx, KeyTemplates)
	t := res.template()
	return &t, nil
}

// UpdateTemplate replaces a template's name and HTML.
func (c *Client) UpdateTemplate(ctx context.Context, id, name, html string) (*campaign.Template, error) {
	tid, err := templateID(id)
	if err != nil {
		return nil, &APIError{Status: http.StatusNotFound, Title: "Resource Not Found", Detail: err.Error()}
	}
	var res templateResource
	if err := c.sendJSON(ctx, http.MethodPatch, "/templates/"+strconv.FormatInt(tid, 10), templateRequest{Name: name, HTML: html}, &res); err != nil {
		return nil, fmt.Errorf("updating template %q: %w", name, err)
	}
	t := res.template()
	return &t, nil
}

// RemoveTemplate deletes a template.
func (c *Client) RemoveTemplate(ctx context.Context, id string) error {
	tid, err := templateID(id)
	if err != nil {
		return &APIError{Status: http.StatusNotFound, Title: "Resource Not Found", Detail: err.Error()}
	}
	if err := c.sendJSON(ctx, http.MethodDelete, "/templates/"+strconv.FormatInt(tid, 10), nil, nil); err != nil {
		return fmt.Errorf("removing template %s: %w", id, err)
	}
	c.invalidate(ctx, KeyTemplates)
	return nil
}

// AttachTemplate sets a campaign's content from a template.
func (c *Client) AttachTemplate(ctx context.Context, campaignID, templateIDStr string) error {
	tid, err := templateID(templateIDStr)
	if err != nil {
		return err
	}
	var body contentRequest
	body.Template.ID = tid
	if err := c.sendJSON(ctx, http.MethodPut, "/campaigns/"+url.PathEscape(campaignID)+"/content", body, nil); err != nil {
		return fmt.Errorf("attaching template %s to %s: %w", templateIDStr, campaignID, err)
	}
	return nil
}

//
// Folders
//

// CreateCampaignFolder returns the folder called name, creating it if
// none exists.
func (c *Client) CreateCampaignFolder(ctx context.Context, name string) (*campaign.Folder, error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(pageSize))
	var existing foldersResponse
	if err := c.getJSON(ctx, "/campaign-folders", params, &existing); err != nil {
		return nil, fmt.Errorf("fetching campaign folders: %w", err)
	}
	for _, f := range existing.Folders {
		if f.Name == name {
			return &campaign.Folder{ID: f.ID, Name: f.Name}, nil
		}
	}

	var res folderResource
	if err := c.sendJSON(ctx, http.MethodPost, "/campaign-folders", map[string]string{"name": name}, &res); err != nil {
		return nil, fmt.Errorf("creating campaign folder %q: %w", name, err)
	}
	return &campaign.Folder{ID: res.ID, Name: res.Name}, nil
}

//
// Webhooks
//

// RegisterWebhook subscribes callbackURL to the audience's campaign events.
func (c *Client) RegisterWebhook(ctx context.Context, audienceID, callbackURL string) error {
	body := webhookRequest{URL: callbackURL, Events: webhookEvents{Campaign: true}}
	if err := c.sendJSON(ctx, http.MethodPost, "/lists/"+url.PathEscape(audienceID)+"/webhooks", body, nil); err != nil {
		return fmt.Errorf("registering webhook for %s: %w", audienceID, err)
	}
	c.log.Info("webhook registered", "audience_id", audienceID, "url", callbackURL)
	return nil
}

// UnregisterWebhook removes this service's webhooks from the audience;
// webhooks pointing elsewhere are left alone.
func (c *Client) UnregisterWebhook(ctx context.Context, audienceID string) error {
	path := "/lists/" + url.PathEscape(audienceID) + "/webhooks"
	var res webhooksResponse
	if err := c.getJSON(ctx, path, nil, &res); err != nil {
		return fmt.Errorf("fetching webhooks for %s: %w", audienceID, err)
	}
	var errs []error
	for _, wh := range res.Webhooks {
		if !strings.Contains(wh.URL, campaign.WebhookPath) {
			continue
		}
		if err := c.sendJSON(ctx, http.MethodDelete, path+"/"+url.PathEscape(wh.ID), nil, nil); err != nil && !errors.Is(err, campaign.ErrNotFound) {
			errs = append(errs, fmt.Errorf("removing webhook %s: %w", wh.ID, err))
		}
	}
	return errors.Join(errs...)
}
