package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/campaignsync/internal/activity"
	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/notify"
	"github.com/ignite/campaignsync/internal/pkg/logger"
	"github.com/ignite/campaignsync/internal/schedule"
)

// ErrInactive is returned when scheduling is asked of an inactive audience.
var ErrInactive = errors.New("campaign: audience is not active")

// LinkResolver looks up the current public link of a content item.
type LinkResolver interface {
	Permalink(ctx context.Context, id audience.ContentID) (string, bool)
}

// Update is an editor's change to an audience. Nil fields are left alone.
// Remote ids and the schedule are owned by the reconciler and cannot be set.
type Update struct {
	State                 *audience.State `json:"state,omitempty"`
	ActiveEditorTab       *string         `json:"active_editor_tab,omitempty"`
	PreviewEmailAddresses *string         `json:"preview_email_addresses,omitempty"`
	Queue                 *audience.Queue `json:"queue,omitempty"`
	Campaign              *CampaignUpdate `json:"campaign,omitempty"`
}

// CampaignUpdate carries the editable campaign fields.
type CampaignUpdate struct {
	EmailSubject      *string             `json:"email_subject,omitempty"`
	EmailFrequency    *schedule.Frequency `json:"email_frequency,omitempty"`
	FrequencySettings *schedule.Rule      `json:"email_frequency_settings,omitempty"`
	EmailTemplate     *TemplateUpdate     `json:"email_template,omitempty"`
}

// TemplateUpdate carries the editable template fields.
type TemplateUpdate struct {
	WidthType       *string                `json:"width_type,omitempty"`
	TemplateContent []audience.TemplateRow `json:"template_content,omitempty"`
}

// Apply copies the set fields onto s.
func (u Update) Apply(s *audience.Settings) {
	if u.State != nil {
		s.State = *u.State
	}
	if u.ActiveEditorTab != nil {
		s.ActiveEditorTab = *u.ActiveEditorTab
	}
	if u.PreviewEmailAddresses != nil {
		s.PreviewEmailAddresses = *u.PreviewEmailAddresses
	}
	if u.Queue != nil {
		s.Queue = *u.Queue
	}
	c := u.Campaign
	if c == nil {
		return
	}
	if c.EmailSubject != nil {
		s.Campaign.EmailSubject = *c.EmailSubject
	}
	if c.EmailFrequency != nil {
		s.Campaign.EmailFrequency = *c.EmailFrequency
	}
	if c.FrequencySettings != nil {
		s.Campaign.FrequencySettings = *c.FrequencySettings
	}
	if t := c.EmailTemplate; t != nil {
		if t.WidthType != nil {
			s.Campaign.EmailTemplate.WidthType = *t.WidthType
		}
		if t.TemplateContent != nil {
			s.Campaign.EmailTemplate.TemplateContent = t.TemplateContent
		}
	}
}

// Reconciler drives the provider so that each audience has exactly one
// recurring campaign matching its settings.
type Reconciler struct {
	repo     *audience.Repository
	provider Provider
	renderer Renderer
	calc     *schedule.Calculator
	links    LinkResolver
	events   notify.Publisher
	activity activity.Recorder
	log      *logger.Logger
}

// NewReconciler wires the collaborators. Events and activity default to no-ops.
func NewReconciler(repo *audience.Repository, provider Provider, renderer Renderer, calc *schedule.Calculator) *Reconciler {
	return &Reconciler{
		repo:     repo,
		provider: provider,
		renderer: renderer,
		calc:     calc,
		events:   notify.Nop{},
		activity: activity.Nop{},
		log:      logger.With("component", "reconciler"),
	}
}

// SetLinkResolver refreshes item links before every schedule.
func (r *Reconciler) SetLinkResolver(l LinkResolver) { r.links = l }

// SetPublisher sets where lifecycle events go.
func (r *Reconciler) SetPublisher(p notify.Publisher) {
	if p != nil {
		r.events = p
	}
}

// SetActivity sets the activity log.
func (r *Reconciler) SetActivity(a activity.Recorder) {
	if a != nil {
		r.activity = a
	}
}

// Calculator returns the recurrence calculator in use.
func (r *Reconciler) Calculator() *schedule.Calculator { return r.calc }

// SaveSettings applies an editor update and reconciles the remote campaign:
// active audiences get a campaign and template, and are (re)scheduled when
// they just became active or their recurrence changed; audiences switched
// off are unscheduled.
func (r *Reconciler) SaveSettings(ctx context.Context, audienceID string, upd Update) (*Result, error) {
	prev, err := r.repo.Get(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	s := prev.Clone()
	upd.Apply(s)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.State == audience.StateActive {
		if _, err := schedule.Parse(s.Campaign.EmailFrequency, s.Campaign.FrequencySettings); err != nil {
			return nil, fmt.Errorf("%w: %v", audience.ErrInvalidSettings, err)
		}
	}

	res := newResult(audienceID)
	stateChanged := prev.State != s.State
	ruleChanged := prev.Campaign.EmailFrequency != s.Campaign.EmailFrequency ||
		!prev.Campaign.FrequencySettings.Equal(s.Campaign.FrequencySettings)
	wasScheduled := prev.Campaign.EmailScheduled != nil

	if err := r.repo.Save(ctx, audienceID, s); err != nil {
		return nil, err
	}
	r.log.Info("audience settings saved", "audience_id", audienceID, "state", s.State.String(),
		"state_changed", stateChanged, "rule_changed", ruleChanged)

	if s.State != audience.StateActive {
		if wasScheduled || stateChanged {
			err = r.unschedule(ctx, audienceID, s, res)
		}
		res.finish(s)
		return res, res.fail(err)
	}

	aud, err := r.provider.GetAudience(ctx, audienceID)
	if err == nil {
		err = r.ensureCampaign(ctx, audienceID, aud, s, res)
	}
	if serr := r.repo.Save(ctx, audienceID, s); serr != nil && err == nil {
		err = serr
	}
	if err != nil {
		r.note(ctx, activity.StateError, fmt.Sprintf("Could not prepare campaign for %s: %v", audienceID, err))
		res.finish(s)
		return res, res.fail(err)
	}

	recreated := wasScheduled && res.Did(ActionCampaignCreated)
	if stateChanged || ruleChanged || recreated {
		err = r.schedule(ctx, audienceID, aud, s, res)
	}
	res.finish(s)
	return res, res.fail(err)
}

// Schedule books the next send for an active audience, creating the
// campaign and template first if needed.
func (r *Reconciler) Schedule(ctx context.Context, audienceID string) (*Result, error) {
	s, err := r.repo.Get(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	res := newResult(audienceID)
	if s.State != audience.StateActive {
		res.finish(s)
		return res, ErrInactive
	}
	aud, err := r.provider.GetAudience(ctx, audienceID)
	if err == nil {
		err = r.ensureCampaign(ctx, audienceID, aud, s, res)
	}
	if serr := r.repo.Save(ctx, audienceID, s); serr != nil && err == nil {
		err = serr
	}
	if err == nil {
		err = r.schedule(ctx, audienceID, aud, s, res)
	}
	res.finish(s)
	return res, res.fail(err)
}

// Unschedule cancels the pending send. Local state is cleared even when the
// provider call fails; the failure is still returned.
func (r *Reconciler) Unschedule(ctx context.Context, audienceID string) (*Result, error) {
	s, err := r.repo.Get(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	res := newResult(audienceID)
	err = r.unschedule(ctx, audienceID, s, res)
	res.finish(s)
	return res, res.fail(err)
}

// SyncTemplate re-renders the email and pushes it to the audience's
// template, creating the template when it is missing, then attaches it.
func (r *Reconciler) SyncTemplate(ctx context.Context, audienceID string) (*Result, error) {
	s, err := r.repo.Get(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	res := newResult(audienceID)
	err = r.syncTemplate(ctx, audienceID, s, res)
	if serr := r.repo.Save(ctx, audienceID, s); serr != nil && err == nil {
		err = serr
	}
	res.finish(s)
	return res, res.fail(err)
}

// ConfirmSent handles the provider reporting that campaignID went out to
// listID. It is a no-op unless both match what the audience tracks, so a
// repeated delivery changes nothing. On a match the queue is rotated and,
// unless the audience sends immediately, the next campaign is scheduled.
func (r *Reconciler) ConfirmSent(ctx context.Context, audienceID, campaignID, listID string) (*Result, error) {
	res := newResult(audienceID)
	if listID != audienceID {
		r.log.Info("sent webhook ignored: audience mismatch", "audience_id", audienceID, "list_id", listID)
		return res, nil
	}
	s, err := r.repo.Get(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	if campaignID == "" || s.Campaign.RemoteID != campaignID {
		r.log.Info("sent webhook ignored: campaign not tracked", "audience_id", audienceID,
			"campaign_id", campaignID, "tracked", s.Campaign.RemoteID)
		res.finish(s)
		return res, nil
	}

	now := r.calc.Now()
	s.LastSendDate = &now
	s.Campaign.EmailScheduled = nil
	s.Campaign.RemoteID = ""
	consumed := s.Queue.Rotate()
	if err := r.repo.Save(ctx, audienceID, s); err != nil {
		return nil, err
	}
	res.Handled = true
	res.add(ActionRotated, campaignID, fmt.Sprintf("%d items consumed", consumed))
	r.note(ctx, activity.StateSuccess, fmt.Sprintf("Campaign %s for %s was sent", campaignID, audienceID))
	ev := notify.NewEvent(notify.EventSent, audienceID, "campaign sent")
	ev.CampaignID = campaignID
	r.publish(ctx, ev)

	if s.Campaign.EmailFrequency == schedule.FrequencyImmediate || s.State != audience.StateActive {
		r.log.Info("sent campaign not rescheduled", "audience_id", audienceID,
			"frequency", string(s.Campaign.EmailFrequency), "state", s.State.String())
		res.Phase = PhaseSentPendingReschedule
		res.finish(s)
		return res, nil
	}

	aud, err := r.provider.GetAudience(ctx, audienceID)
	if err == nil {
		err = r.ensureCampaign(ctx, audienceID, aud, s, res)
	}
	if serr := r.repo.Save(ctx, audienceID, s); serr != nil && err == nil {
		err = serr
	}
	if err == nil {
		err = r.schedule(ctx, audienceID, aud, s, res)
	}
	if err == nil {
		ev := notify.NewEvent(notify.EventRescheduled, audienceID, "next campaign scheduled")
		ev.CampaignID = s.Campaign.RemoteID
		ev.SendTime = s.Campaign.EmailScheduled
		r.publish(ctx, ev)
	} else {
		res.Phase = PhaseSentPendingReschedule
	}
	res.finish(s)
	return res, res.fail(err)
}

// trackedCampaign returns the remote campaign the settings point at, or nil
// when there is none or it has already gone out.
func (r *Reconciler) trackedCampaign(ctx context.Context, s *audience.Settings) (*RemoteCampaign, error) {
	if s.Campaign.RemoteID == "" {
		return nil, nil
	}
	c, err := r.provider.GetCampaign(ctx, s.Campaign.RemoteID)
	if errors.Is(err, ErrNotFound) {
		r.log.Warn("tracked campaign is gone", "campaign_id", s.Campaign.RemoteID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign %s: %w", s.Campaign.RemoteID, err)
	}
	if c.Status == StatusSent {
		return nil, nil
	}
	return c, nil
}

// ensureCampaign makes sure the audience has a live campaign with a
// template attached. Without one, stray drafts are purged and a folder,
// template and campaign are created.
func (r *Reconciler) ensureCampaign(ctx context.Context, audienceID string, aud *Audience, s *audience.Settings, res *Result) error {
	camp, err := r.trackedCampaign(ctx, s)
	if err != nil {
		return err
	}
	if camp != nil {
		return r.ensureTemplate(ctx, audienceID, camp.ID, s, res)
	}

	n, err := r.provider.ClearDrafts(ctx, audienceID)
	if err != nil {
		return fmt.Errorf("failed to clear drafts: %w", err)
	}
	if n > 0 {
		res.add(ActionDraftsCleared, audienceID, fmt.Sprintf("%d drafts removed", n))
	}

	// The stored folder may have been deleted with the campaign; the
	// provider matches folders by name.
	folder, err := r.provider.CreateCampaignFolder(ctx, audienceTitle(aud, audienceID))
	if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	s.Campaign.RemoteFolderID = folder.ID
	res.add(ActionFolderEnsured, folder.ID, folder.Name)

	html, err := r.renderer.RenderEmailHTML(ctx, audienceID)
	if err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}
	tpl, err := r.upsertTemplate(ctx, audienceID, s, html, res)
	if err != nil {
		return err
	}

	c, err := r.provider.CreateCampaign(ctx, audienceID, r.subject(s, aud), false, s.Campaign.RemoteFolderID)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	s.Campaign.RemoteID = c.ID
	s.Campaign.EmailScheduled = nil
	res.add(ActionCampaignCreated, c.ID, c.Title)
	r.log.Info("campaign created", "audience_id", audienceID, "campaign_id", c.ID)

	if err := r.provider.AttachTemplate(ctx, c.ID, tpl.ID); err != nil {
		return fmt.Errorf("failed to attach template: %w", err)
	}
	res.add(ActionTemplateAttached, c.ID, tpl.ID)

	if _, err := r.provider.GetCampaigns(ctx, true); err != nil {
		r.log.Warn("campaign cache refresh failed", "error", err)
	}
	return nil
}

// ensureTemplate creates and attaches a template only when the tracked one
// is missing.
func (r *Reconciler) ensureTemplate(ctx context.Context, audienceID, campaignID string, s *audience.Settings, res *Result) error {
	if id := s.Campaign.EmailTemplate.RemoteID; id != "" {
		_, err := r.provider.GetTemplate(ctx, id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to load template %s: %w", id, err)
		}
		s.Campaign.EmailTemplate.RemoteID = ""
		s.Campaign.EmailTemplate.RemoteName = ""
	}
	html, err := r.renderer.RenderEmailHTML(ctx, audienceID)
	if err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}
	tpl, err := r.upsertTemplate(ctx, audienceID, s, html, res)
	if err != nil {
		return err
	}
	if err := r.provider.AttachTemplate(ctx, campaignID, tpl.ID); err != nil {
		return fmt.Errorf("failed to attach template: %w", err)
	}
	res.add(ActionTemplateAttached, campaignID, tpl.ID)
	return nil
}

// syncTemplate pushes fresh HTML and attaches the template to the tracked
// campaign, if any.
func (r *Reconciler) syncTemplate(ctx context.Context, audienceID string, s *audience.Settings, res *Result) error {
	html, err := r.renderer.RenderEmailHTML(ctx, audienceID)
	if err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}
	tpl, err := r.upsertTemplate(ctx, audienceID, s, html, res)
	if err != nil {
		return err
	}
	if s.Campaign.RemoteID == "" {
		return nil
	}
	if err := r.provider.AttachTemplate(ctx, s.Campaign.RemoteID, tpl.ID); err != nil {
		return fmt.Errorf("failed to attach template: %w", err)
	}
	res.add(ActionTemplateAttached, s.Campaign.RemoteID, tpl.ID)
	return nil
}

// upsertTemplate updates the tracked template in place, or creates one
// when none is tracked or the tracked one no longer exists.
func (r *Reconciler) upsertTemplate(ctx context.Context, audienceID string, s *audience.Settings, html string, res *Result) (*Template, error) {
	name := TemplateName(audienceID)
	if id := s.Campaign.EmailTemplate.RemoteID; id != "" {
		tpl, err := r.provider.UpdateTemplate(ctx, id, name, html)
		if err == nil {
			s.Campaign.EmailTemplate.RemoteName = tpl.Name
			res.add(ActionTemplateUpdated, tpl.ID, tpl.Name)
			return tpl, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("failed to update template %s: %w", id, err)
		}
	}
	tpl, err := r.provider.CreateTemplate(ctx, name, html)
	if err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}
	s.Campaign.EmailTemplate.RemoteID = tpl.ID
	s.Campaign.EmailTemplate.RemoteName = tpl.Name
	res.add(ActionTemplateCreated, tpl.ID, tpl.Name)
	return tpl, nil
}

// schedule books the next occurrence for a campaign that already exists.
// The schedule is only recorded once the provider accepted it.
func (r *Reconciler) schedule(ctx context.Context, audienceID string, aud *Audience, s *audience.Settings, res *Result) error {
	if s.State != audience.StateActive {
		return ErrInactive
	}
	remoteID := s.Campaign.RemoteID
	if remoteID == "" {
		return fmt.Errorf("campaign: audience %s has no remote campaign", audienceID)
	}

	when, err := r.calc.Next(s.Campaign.EmailFrequency, s.Campaign.FrequencySettings, s.Timezone)
	if err != nil {
		return err
	}

	if r.links != nil {
		if n := s.Queue.RefreshLinks(func(id audience.ContentID) (string, bool) {
			return r.links.Permalink(ctx, id)
		}); n > 0 {
			res.add(ActionLinksRefreshed, audienceID, fmt.Sprintf("%d links", n))
		}
	}

	// A scheduled campaign cannot be edited until it is unscheduled.
	if s.Campaign.EmailScheduled != nil {
		if err := r.provider.UnscheduleCampaign(ctx, remoteID); err != nil {
			r.log.Warn("unschedule before reschedule failed", "campaign_id", remoteID, "error", err)
		}
		s.Campaign.EmailScheduled = nil
	}
	if err := r.repo.Save(ctx, audienceID, s); err != nil {
		return err
	}

	subject := r.subject(s, aud)
	if _, err := r.provider.UpdateCampaign(ctx, remoteID, audienceID, subject); err != nil {
		return fmt.Errorf("failed to update campaign %s: %w", remoteID, err)
	}
	res.add(ActionSubjectUpdated, remoteID, subject)

	if err := r.syncTemplate(ctx, audienceID, s, res); err != nil {
		return err
	}

	if err := r.provider.ScheduleCampaign(ctx, remoteID, when); err != nil {
		s.Campaign.EmailScheduled = nil
		if serr := r.repo.Save(ctx, audienceID, s); serr != nil {
			r.log.Error("failed to save settings after schedule failure", "audience_id", audienceID, "error", serr)
		}
		r.note(ctx, activity.StateError, fmt.Sprintf("Could not schedule %s for %s: %v", remoteID, audienceTitle(aud, audienceID), err))
		ev := notify.NewEvent(notify.EventFailed, audienceID, "scheduling failed")
		ev.CampaignID = remoteID
		r.publish(ctx, ev)
		return fmt.Errorf("failed to schedule campaign %s: %w", remoteID, err)
	}

	s.Campaign.EmailScheduled = &when
	if err := r.repo.Save(ctx, audienceID, s); err != nil {
		return err
	}
	sendTime := schedule.FormatSendTime(when)
	res.add(ActionScheduled, remoteID, sendTime)
	r.log.Info("campaign scheduled", "audience_id", audienceID, "campaign_id", remoteID, "send_time", sendTime)
	r.note(ctx, activity.StateSuccess, fmt.Sprintf("Your next Campaign for %s has been scheduled for %s", audienceTitle(aud, audienceID), sendTime))
	ev := notify.NewEvent(notify.EventScheduled, audienceID, "campaign scheduled for "+sendTime)
	ev.CampaignID = remoteID
	ev.SendTime = &when
	r.publish(ctx, ev)
	return nil
}

// unschedule clears the schedule and campaign locally, then tells the
// provider when there was a pending send.
func (r *Reconciler) unschedule(ctx context.Context, audienceID string, s *audience.Settings, res *Result) error {
	remoteID := s.Campaign.RemoteID
	pending := remoteID != "" && s.Campaign.EmailScheduled != nil

	var perr error
	if pending {
		perr = r.provider.UnscheduleCampaign(ctx, remoteID)
	}
	s.Campaign.EmailScheduled = nil
	s.Campaign.RemoteID = ""
	if err := r.repo.Save(ctx, audienceID, s); err != nil {
		return err
	}

	if perr != nil {
		r.log.Warn("provider unschedule failed; local schedule cleared", "audience_id", audienceID,
			"campaign_id", remoteID, "error", perr)
		r.note(ctx, activity.StateError, fmt.Sprintf("Could not unschedule %s: %v", remoteID, perr))
		ev := notify.NewEvent(notify.EventFailed, audienceID, "unscheduling failed")
		ev.CampaignID = remoteID
		r.publish(ctx, ev)
		return fmt.Errorf("failed to unschedule campaign %s: %w", remoteID, perr)
	}

	res.add(ActionUnscheduled, remoteID, "")
	if pending {
		r.note(ctx, activity.StateInfo, fmt.Sprintf("Campaign %s for %s was unscheduled", remoteID, audienceID))
		ev := notify.NewEvent(notify.EventUnscheduled, audienceID, "campaign unscheduled")
		ev.CampaignID = remoteID
		r.publish(ctx, ev)
	}
	return nil
}

func audienceTitle(aud *Audience, fallback string) string {
	if aud == nil || aud.Title == "" {
		return fallback
	}
	return aud.Title
}

func (r *Reconciler) subject(s *audience.Settings, aud *Audience) string {
	return ParseTokens(s.Campaign.EmailSubject, TokenData{
		AudienceTitle:     audienceTitle(aud, ""),
		TotalContentItems: s.TotalContentItems(),
		Today:             r.calc.Now().In(s.Timezone.Location()),
	})
}

func (r *Reconciler) publish(ctx context.Context, e notify.Event) {
	if err := r.events.Publish(ctx, e); err != nil {
		r.log.Warn("event publish failed", "event", string(e.Type), "error", err)
	}
}

func (r *Reconciler) note(ctx context.Context, state, text string) {
	err := r.activity.Record(ctx, activity.Entry{Time: r.calc.Now(), Text: text, State: state, Context: "mailchimp"})
	if err != nil {
		r.log.Warn("activity record failed", "error", err)
	}
}

// NextSend computes the next send instant for the audience's current rule.
func (r *Reconciler) NextSend(ctx context.Context, audienceID string) (time.Time, error) {
	s, err := r.repo.Get(ctx, audienceID)
	if err != nil {
		return time.Time{}, err
	}
	return r.calc.Next(s.Campaign.EmailFrequency, s.Campaign.FrequencySettings, s.Timezone)
}
