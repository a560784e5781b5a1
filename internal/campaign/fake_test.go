package campaign_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/campaign"
	"github.com/ignite/campaignsync/internal/notify"
	"github.com/ignite/campaignsync/internal/pkg/clock"
	"github.com/ignite/campaignsync/internal/schedule"
	"github.com/ignite/campaignsync/internal/storage"
)

// fakeProvider is an in-memory provider account.
type fakeProvider struct {
	mu        sync.Mutex
	audiences map[string]campaign.Audience
	campaigns map[string]*campaign.RemoteCampaign
	templates map[string]*campaign.Template
	html      map[string]string
	folders   []campaign.Folder
	webhooks  map[string]string
	scheduled map[string]time.Time
	testSends map[string][]string
	calls     []string
	seq       int

	scheduleErr   error
	unscheduleErr error
	testSendErr   error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		audiences: map[string]campaign.Audience{},
		campaigns: map[string]*campaign.RemoteCampaign{},
		templates: map[string]*campaign.Template{},
		html:      map[string]string{},
		webhooks:  map[string]string{},
		scheduled: map[string]time.Time{},
		testSends: map[string][]string{},
	}
}

func notFound(what string) error {
	return &campaign.ProviderError{Status: 404, Message: what + " not found"}
}

func (f *fakeProvider) call(name string) {
	f.calls = append(f.calls, name)
}

func (f *fakeProvider) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeProvider) resetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeProvider) id(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *fakeProvider) GetAudiences(_ context.Context, _ bool) ([]campaign.Audience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetAudiences")
	out := []campaign.Audience{}
	for _, a := range f.audiences {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeProvider) GetAudience(_ context.Context, id string) (*campaign.Audience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetAudience")
	a, ok := f.audiences[id]
	if !ok {
		return nil, notFound("audience")
	}
	return &a, nil
}

func (f *fakeProvider) GetCampaign(_ context.Context, id string) (*campaign.RemoteCampaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetCampaign")
	c, ok := f.campaigns[id]
	if !ok {
		return nil, notFound("campaign")
	}
	cp := *c
	return &cp, nil
}

func (f *fakeProvider) GetCampaigns(_ context.Context, _ bool, statuses ...string) ([]campaign.RemoteCampaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetCampaigns")
	out := []campaign.RemoteCampaign{}
	for _, c := range f.campaigns {
		if len(statuses) > 0 && !contains(statuses, c.Status) {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (f *fakeProvider) CreateCampaign(_ context.Context, audienceID, subject string, isTest bool, folderID string) (*campaign.RemoteCampaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("CreateCampaign")
	c := &campaign.RemoteCampaign{
		ID:         f.id("c"),
		Status:     campaign.StatusSave,
		AudienceID: audienceID,
		Title:      campaign.CampaignTitle(subject, isTest),
		Subject:    campaign.CampaignSubject(subject, isTest),
		FolderID:   folderID,
	}
	f.campaigns[c.ID] = c
	cp := *c
	return &cp, nil
}

func (f *fakeProvider) UpdateCampaign(_ context.Context, id, _, subject string) (*campaign.RemoteCampaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("UpdateCampaign")
	c, ok := f.campaigns[id]
	if !ok {
		return nil, notFound("campaign")
	}
	c.Subject = subject
	c.Title = campaign.CampaignTitle(subject, false)
	cp := *c
	return &cp, nil
}

func (f *fakeProvider) RemoveCampaign(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("RemoveCampaign")
	if _, ok := f.campaigns[id]; !ok {
		return notFound("campaign")
	}
	delete(f.campaigns, id)
	delete(f.scheduled, id)
	return nil
}

func (f *fakeProvider) ScheduleCampaign(_ context.Context, id string, sendTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("ScheduleCampaign")
	if f.scheduleErr != nil {
		return f.scheduleErr
	}
	c, ok := f.campaigns[id]
	if !ok {
		return notFound("campaign")
	}
	c.Status = campaign.StatusSchedule
	f.scheduled[id] = sendTime
	return nil
}

func (f *fakeProvider) UnscheduleCampaign(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("UnscheduleCampaign")
	if f.unscheduleErr != nil {
		return f.unscheduleErr
	}
	c, ok := f.campaigns[id]
	if !ok {
		return notFound("campaign")
	}
	c.Status = campaign.StatusPaused
	delete(f.scheduled, id)
	return nil
}

func (f *fakeProvider) SendTestEmail(_ context.Context, id string, recipients []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("SendTestEmail")
	if f.testSendErr != nil {
		return f.testSendErr
	}
	f.testSends[id] = recipients
	return nil
}

func (f *fakeProvider) ClearDrafts(_ context.Context, audienceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("ClearDrafts")
	n := 0
	for id, c := range f.campaigns {
		if c.AudienceID != audienceID || !campaign.IsManagedTitle(c.Title) {
			continue
		}
		if c.Status == campaign.StatusSave || c.Status == campaign.StatusPaused {
			delete(f.campaigns, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeProvider) GetTemplate(_ context.Context, id string) (*campaign.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetTemplate")
	t, ok := f.templates[id]
	if !ok {
		return nil, notFound("template")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeProvider) GetTemplates(_ context.Context, _ bool) ([]campaign.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("GetTemplates")
	out := []campaign.Template{}
	for _, t := range f.templates {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeProvider) CreateTemplate(_ context.Context, name, html string) (*campaign.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("CreateTemplate")
	t := &campaign.Template{ID: f.id("t"), Name: name}
	f.templates[t.ID] = t
	f.html[t.ID] = html
	cp := *t
	return &cp, nil
}

func (f *fakeProvider) UpdateTemplate(_ context.Context, id, name, html string) (*campaign.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("UpdateTemplate")
	t, ok := f.templates[id]
	if !ok {
		return nil, notFound("template")
	}
	t.Name = name
	f.html[id] = html
	cp := *t
	return &cp, nil
}

func (f *fakeProvider) RemoveTemplate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("RemoveTemplate")
	if _, ok := f.templates[id]; !ok {
		return notFound("template")
	}
	delete(f.templates, id)
	return nil
}

func (f *fakeProvider) AttachTemplate(_ context.Context, campaignID, templateID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("AttachTemplate")
	c, ok := f.campaigns[campaignID]
	if !ok {
		return notFound("campaign")
	}
	c.TemplateID = templateID
	return nil
}

func (f *fakeProvider) CreateCampaignFolder(_ context.Context, name string) (*campaign.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("CreateCampaignFolder")
	for _, fo := range f.folders {
		if fo.Name == name {
			cp := fo
			return &cp, nil
		}
	}
	fo := campaign.Folder{ID: f.id("f"), Name: name}
	f.folders = append(f.folders, fo)
	return &fo, nil
}

func (f *fakeProvider) RegisterWebhook(_ context.Context, audienceID, callbackURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("RegisterWebhook")
	f.webhooks[audienceID] = callbackURL
	return nil
}

func (f *fakeProvider) UnregisterWebhook(_ context.Context, audienceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("UnregisterWebhook")
	delete(f.webhooks, audienceID)
	return nil
}

type staticRenderer struct {
	calls int
}

func (r *staticRenderer) RenderEmailHTML(_ context.Context, audienceID string) (string, error) {
	r.calls++
	return "<html><body>" + audienceID + "</body></html>", nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []notify.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notify.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// Wednesday, 4 March 2026, 10:00 UTC.
var wednesday = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	repo     *audience.Repository
	provider *fakeProvider
	renderer *staticRenderer
	clock    *clock.Fixed
	events   *recordingPublisher
	rec      *campaign.Reconciler
	svc      *campaign.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := audience.NewRepository(storage.NewMemory(), audience.Defaults{
		Timezone:     schedule.UTC,
		PreviewEmail: "editor@example.com",
	})
	prov := newFakeProvider()
	prov.audiences["aud1"] = campaign.Audience{ID: "aud1", Title: "Weekly Digest", SubscriberCount: 120}
	rnd := &staticRenderer{}
	clk := clock.NewFixed(wednesday)
	events := &recordingPublisher{}

	rec := campaign.NewReconciler(repo, prov, rnd, schedule.NewCalculator(clk))
	rec.SetPublisher(events)
	svc := campaign.NewService(repo, prov, rec, rnd, "https://news.example.com/")
	return &fixture{repo: repo, provider: prov, renderer: rnd, clock: clk, events: events, rec: rec, svc: svc}
}

func mondayNine() campaign.Update {
	freq := schedule.FrequencyWeekly
	rule := schedule.Rule{
		Days:  []schedule.Weekday{schedule.DayFromWeekday(time.Monday)},
		Times: []string{"09:00"},
	}
	subject := "{audience_title}: {total_content_items} new posts for {date_today}"
	return campaign.Update{Campaign: &campaign.CampaignUpdate{
		EmailSubject:      &subject,
		EmailFrequency:    &freq,
		FrequencySettings: &rule,
	}}
}

func stateUpdate(s audience.State) campaign.Update {
	return campaign.Update{State: &s}
}
