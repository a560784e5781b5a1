package campaign

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/pkg/logger"
)

// ErrNoRecipients is returned by SendPreview when no address was given.
var ErrNoRecipients = errors.New("campaign: no preview recipients")

// AudienceView is a provider audience merged with its local settings.
type AudienceView struct {
	ID              string             `json:"id"`
	WebID           int64              `json:"web_id,omitempty"`
	Title           string             `json:"title"`
	SubscriberCount int                `json:"sub_count"`
	LastSent        *time.Time         `json:"last_sent"`
	State           audience.State     `json:"state"`
	Scheduled       *time.Time         `json:"scheduled"`
	Phase           Phase              `json:"phase"`
	Settings        *audience.Settings `json:"settings"`
	Segments        []Segment          `json:"segments"`
}

// ItemLocation says which audience and section hold a content item.
type ItemLocation struct {
	AudienceID string `json:"audience_id"`
	audience.Location
	Item audience.Item `json:"item"`
}

// PreviewRequest is a test send. Empty fields fall back to the audience's
// stored subject and preview addresses.
type PreviewRequest struct {
	Subject    string   `json:"email_subject"`
	Recipients []string `json:"preview_email_addresses"`
}

// Service is everything the editor and maintenance tools do that is not
// reconciliation proper: listing, queue editing, previews, webhooks and
// cleanup.
type Service struct {
	repo      *audience.Repository
	provider  Provider
	rec       *Reconciler
	renderer  Renderer
	links     LinkResolver
	publicURL string
	log       *logger.Logger
}

// NewService builds the service. publicURL is where the provider can reach
// the webhook endpoint; webhooks are not registered when it is empty.
func NewService(repo *audience.Repository, provider Provider, rec *Reconciler, renderer Renderer, publicURL string) *Service {
	return &Service{
		repo:      repo,
		provider:  provider,
		rec:       rec,
		renderer:  renderer,
		publicURL: publicURL,
		log:       logger.With("component", "campaign.Service"),
	}
}

// SetLinkResolver enables link refreshing on settings reads.
func (s *Service) SetLinkResolver(l LinkResolver) { s.links = l }

// Reconciler returns the reconciler the service delegates to.
func (s *Service) Reconciler() *Reconciler { return s.rec }

// Repository returns the settings repository.
func (s *Service) Repository() *audience.Repository { return s.repo }

// Audiences lists provider audiences with their local state.
func (s *Service) Audiences(ctx context.Context, force bool) ([]AudienceView, error) {
	remote, err := s.provider.GetAudiences(ctx, force)
	if err != nil {
		return nil, err
	}
	out := make([]AudienceView, 0, len(remote))
	for _, a := range remote {
		v, err := s.view(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// Audience returns one audience with its local state.
func (s *Service) Audience(ctx context.Context, audienceID string) (*AudienceView, error) {
	a, err := s.provider.GetAudience(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, *a)
}

func (s *Service) view(ctx context.Context, a Audience) (*AudienceView, error) {
	st, err := s.repo.Get(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	segments := a.Segments
	if segments == nil {
		segments = []Segment{}
	}
	return &AudienceView{
		ID:              a.ID,
		WebID:           a.WebID,
		Title:           a.Title,
		SubscriberCount: a.SubscriberCount,
		LastSent:        a.CampaignLastSent,
		State:           st.State,
		Scheduled:       st.Campaign.EmailScheduled,
		Phase:           PhaseOf(st),
		Settings:        st,
		Segments:        segments,
	}, nil
}

// Settings returns an audience's settings for the editor. Item links are
// refreshed and the webhook is registered if it never was.
func (s *Service) Settings(ctx context.Context, audienceID string) (*audience.Settings, error) {
	if _, err := s.RefreshLinks(ctx, audienceID); err != nil {
		return nil, err
	}
	if _, err := s.RegisterWebhook(ctx, audienceID, false); err != nil {
		s.log.Warn("webhook registration failed", "audience_id", audienceID, "error", err)
	}
	return s.repo.Get(ctx, audienceID)
}

// RegisterWebhook points the provider's "campaign" events for the audience
// at this service. Without force it does nothing once registered. Any
// previous registration is removed first.
func (s *Service) RegisterWebhook(ctx context.Context, audienceID string, force bool) (bool, error) {
	if s.publicURL == "" {
		return false, nil
	}
	st, err := s.repo.Get(ctx, audienceID)
	if err != nil {
		return false, err
	}
	if bool(st.WebhookConfigured) && !force {
		return false, nil
	}
	if err := s.provider.UnregisterWebhook(ctx, audienceID); err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Warn("webhook unregister before register failed", "audience_id", audienceID, "error", err)
	}
	url := WebhookURL(s.publicURL, audienceID)
	if err := s.provider.RegisterWebhook(ctx, audienceID, url); err != nil {
		return false, fmt.Errorf("failed to register webhook for %s: %w", audienceID, err)
	}
	st.WebhookConfigured = true
	if err := s.repo.Save(ctx, audienceID, st); err != nil {
		return false, err
	}
	s.log.Info("webhook registered", "audience_id", audienceID, "url", url)
	return true, nil
}

// UnregisterWebhook removes the audience's webhook.
func (s *Service) UnregisterWebhook(ctx context.Context, audienceID string) error {
	if err := s.provider.UnregisterWebhook(ctx, audienceID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to unregister webhook for %s: %w", audienceID, err)
	}
	st, err := s.repo.Get(ctx, audienceID)
	if err != nil {
		return err
	}
	st.WebhookConfigured = false
	return s.repo.Save(ctx, audienceID, st)
}

// RegisterWebhooks force-registers the webhook of every provider audience.
func (s *Service) RegisterWebhooks(ctx context.Context) ([]AudienceView, error) {
	auds, err := s.provider.GetAudiences(ctx, true)
	if err != nil {
		return nil, err
	}
	var errs []error
	out := make([]AudienceView, 0, len(auds))
	for _, a := range auds {
		if _, err := s.RegisterWebhook(ctx, a.ID, true); err != nil {
			errs = append(errs, err)
		}
		v, err := s.view(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, errors.Join(errs...)
}

// UpsertItem puts item into a section, moving it out of any other section.
func (s *Service) UpsertItem(ctx context.Context, audienceID, sectionID string, item audience.Item) (*audience.Settings, error) {
	st, err := s.repo.Get(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	if s.links != nil && item.LinkToContent == "" {
		if link, ok := s.links.Permalink(ctx, item.ID); ok {
			item.LinkToContent = link
		}
	}
	if err := st.Queue.Upsert(sectionID, item); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, audienceID, st); err != nil {
		return nil, err
	}
	return st, nil
}

// RemoveItem takes the item out of the audience's queue, or out of every
// stored audience when audienceID is empty. It returns how many audiences
// changed.
func (s *Service) RemoveItem(ctx context.Context, audienceID string, id audience.ContentID) (int, error) {
	ids := []string{audienceID}
	if audienceID == "" {
		var err error
		if ids, err = s.repo.AudienceIDs(ctx); err != nil {
			return 0, err
		}
	}
	changed := 0
	for _, aid := range ids {
		st, err := s.repo.Get(ctx, aid)
		if err != nil {
			return changed, err
		}
		if !st.Queue.Remove(id) {
			continue
		}
		if err := s.repo.Save(ctx, aid, st); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// FindItem lists every stored audience section holding the item.
func (s *Service) FindItem(ctx context.Context, id audience.ContentID) ([]ItemLocation, error) {
	ids, err := s.repo.AudienceIDs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	out := []ItemLocation{}
	for _, aid := range ids {
		st, err := s.repo.Get(ctx, aid)
		if err != nil {
			return nil, err
		}
		if item, loc, ok := st.Queue.Find(id); ok {
			out = append(out, ItemLocation{AudienceID: aid, Location: loc, Item: item})
		}
	}
	return out, nil
}

// ReorderSection sets the item order of a section.
func (s *Service) ReorderSection(ctx context.Context, audienceID, sectionID string, ids []audience.ContentID) (*audience.Settings, error) {
	st, err := s.repo.Get(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	if err := st.Queue.Reorder(sectionID, ids); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, audienceID, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Sections lists the audience's sections with item counts.
func (s *Service) Sections(ctx context.Context, audienceID string) ([]audience.SectionSummary, error) {
	st, err := s.repo.Get(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	return st.Queue.Summaries(), nil
}

// RefreshLinks updates item links from the resolver and saves when any
// changed.
func (s *Service) RefreshLinks(ctx context.Context, audienceID string) (int, error) {
	if s.links == nil {
		return 0, nil
	}
	exists, err := s.repo.Exists(ctx, audienceID)
	if err != nil || !exists {
		return 0, err
	}
	st, err := s.repo.Get(ctx, audienceID)
	if err != nil {
		return 0, err
	}
	n := st.Queue.RefreshLinks(func(id audience.ContentID) (string, bool) {
		return s.links.Permalink(ctx, id)
	})
	if n == 0 {
		return 0, nil
	}
	return n, s.repo.Save(ctx, audienceID, st)
}

// NextSend computes the audience's next send time under its current rule.
func (s *Service) NextSend(ctx context.Context, audienceID string) (time.Time, error) {
	return s.rec.NextSend(ctx, audienceID)
}

// SendPreview sends the audience's current email as a test through a
// temporary campaign and template, both removed afterwards whatever happened.
func (s *Service) SendPreview(ctx context.Context, audienceID string, req PreviewRequest) (*Result, error) {
	res := newResult(audienceID)
	st, err := s.repo.Get(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	res.Settings = st
	res.Phase = PhaseOf(st)

	recipients := cleanRecipients(req.Recipients)
	if len(recipients) == 0 {
		recipients = cleanRecipients(strings.Split(st.PreviewEmailAddresses, ","))
	}
	if len(recipients) == 0 {
		return res, ErrNoRecipients
	}

	aud, err := s.provider.GetAudience(ctx, audienceID)
	if err != nil {
		return res, res.fail(err)
	}
	subject := req.Subject
	if subject == "" {
		subject = st.Campaign.EmailSubject
	}
	subject = ParseTokens(subject, TokenData{
		AudienceTitle:     aud.Title,
		TotalContentItems: st.TotalContentItems(),
		Today:             s.rec.calc.Now().In(st.Timezone.Location()),
	})
	html, err := s.renderer.RenderEmailHTML(ctx, audienceID)
	if err != nil {
		return res, fmt.Errorf("failed to render email: %w", err)
	}

	c, err := s.provider.CreateCampaign(ctx, audienceID, subject, true, "")
	if err != nil {
		return res, res.fail(fmt.Errorf("failed to create preview campaign: %w", err))
	}
	res.add(ActionCampaignCreated, c.ID, c.Title)
	var tpl *Template
	defer func() {
		cleanup := context.WithoutCancel(ctx)
		if tpl != nil {
			if err := s.provider.RemoveTemplate(cleanup, tpl.ID); err != nil {
				s.log.Warn("preview template cleanup failed", "template_id", tpl.ID, "error", err)
			} else {
				res.add(ActionCleanedUp, tpl.ID, "template")
			}
		}
		if err := s.provider.RemoveCampaign(cleanup, c.ID); err != nil {
			s.log.Warn("preview campaign cleanup failed", "campaign_id", c.ID, "error", err)
		} else {
			res.add(ActionCleanedUp, c.ID, "campaign")
		}
	}()

	tpl, err = s.provider.CreateTemplate(ctx, PreviewTemplateName(audienceID), html)
	if err != nil {
		return res, res.fail(fmt.Errorf("failed to create preview template: %w", err))
	}
	res.add(ActionTemplateCreated, tpl.ID, tpl.Name)
	if err := s.provider.AttachTemplate(ctx, c.ID, tpl.ID); err != nil {
		return res, res.fail(fmt.Errorf("failed to attach preview template: %w", err))
	}
	res.add(ActionTemplateAttached, c.ID, tpl.ID)
	if err := s.provider.SendTestEmail(ctx, c.ID, recipients); err != nil {
		return res, res.fail(fmt.Errorf("failed to send preview: %w", err))
	}
	res.add(ActionPreviewSent, c.ID, strings.Join(recipients, ", "))
	s.log.Info("preview sent", "audience_id", audienceID, "recipients", len(recipients))
	return res, nil
}

func cleanRecipients(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// RemoveManagedCampaigns deletes every campaign created here, along with
// its template, and returns the removed campaign ids.
func (s *Service) RemoveManagedCampaigns(ctx context.Context) ([]string, error) {
	campaigns, err := s.provider.GetCampaigns(ctx, true)
	if err != nil {
		return nil, err
	}
	removed := []string{}
	var errs []error
	for _, c := range campaigns {
		if !IsManagedTitle(c.Title) {
			continue
		}
		if c.TemplateID != "" {
			if err := s.provider.RemoveTemplate(ctx, c.TemplateID); err != nil && !errors.Is(err, ErrNotFound) {
				errs = append(errs, err)
			}
		}
		if err := s.provider.RemoveCampaign(ctx, c.ID); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, c.ID)
	}
	if _, err := s.provider.GetCampaigns(ctx, true); err != nil {
		s.log.Warn("campaign cache refresh failed", "error", err)
	}
	return removed, errors.Join(errs...)
}

// RemoveManagedTemplates deletes every template created here.
func (s *Service) RemoveManagedTemplates(ctx context.Context) ([]string, error) {
	templates, err := s.provider.GetTemplates(ctx, true)
	if err != nil {
		return nil, err
	}
	removed := []string{}
	var errs []error
	for _, t := range templates {
		if !IsManagedTemplate(t.Name) {
			continue
		}
		if err := s.provider.RemoveTemplate(ctx, t.ID); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, t.ID)
	}
	if _, err := s.provider.GetTemplates(ctx, true); err != nil {
		s.log.Warn("template cache refresh failed", "error", err)
	}
	return removed, errors.Join(errs...)
}

// knownAudienceIDs merges stored audiences with the provider's, when the
// provider is reachable.
func (s *Service) knownAudienceIDs(ctx context.Context) ([]string, error) {
	ids, err := s.repo.AudienceIDs(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	auds, err := s.provider.GetAudiences(ctx, true)
	if err != nil && !errors.Is(err, ErrUnavailable) {
		return nil, err
	}
	for _, a := range auds {
		if !seen[a.ID] {
			seen[a.ID] = true
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ResetAudiences overwrites every audience's settings with defaults. Remote
// data is untouched.
func (s *Service) ResetAudiences(ctx context.Context) ([]string, error) {
	ids, err := s.knownAudienceIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, err := s.repo.Reset(ctx, id); err != nil {
			return nil, err
		}
	}
	s.log.Info("audience settings reset", "count", len(ids))
	return ids, nil
}

// ResetAll deletes the plugin settings and every audience's settings.
func (s *Service) ResetAll(ctx context.Context) error {
	ids, err := s.knownAudienceIDs(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePlugin(ctx); err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
	}
	s.log.Info("all settings deleted", "audiences", len(ids))
	return nil
}
