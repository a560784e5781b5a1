package campaign_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/campaign"
)

type mapLinks map[audience.ContentID]string

func (m mapLinks) Permalink(_ context.Context, id audience.ContentID) (string, bool) {
	link, ok := m[id]
	return link, ok
}

func TestAudiencesMergeLocalState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	views, err := f.svc.Audiences(ctx, false)
	require.NoError(t, err)
	require.Len(t, views, 1)
	v := views[0]
	assert.Equal(t, "aud1", v.ID)
	assert.Equal(t, "Weekly Digest", v.Title)
	assert.Equal(t, 120, v.SubscriberCount)
	assert.Equal(t, audience.StateActive, v.State)
	assert.Equal(t, campaign.PhaseDrafting, v.Phase)
	assert.Nil(t, v.Scheduled)
	assert.NotNil(t, v.Segments)

	_, err = f.rec.SaveSettings(ctx, "aud1", mondayNine())
	require.NoError(t, err)
	v2, err := f.svc.Audience(ctx, "aud1")
	require.NoError(t, err)
	assert.Equal(t, campaign.PhaseScheduled, v2.Phase)
	assert.NotNil(t, v2.Scheduled)
}

func TestSettingsRegistersWebhookOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.Settings(ctx, "aud1")
	require.NoError(t, err)
	assert.True(t, bool(st.WebhookConfigured))
	assert.Equal(t, "https://news.example.com/campaignpress/mailchimp/webhook/aud1", f.provider.webhooks["aud1"])

	_, err = f.svc.Settings(ctx, "aud1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.provider.count("RegisterWebhook"))

	_, err = f.svc.RegisterWebhooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.provider.count("RegisterWebhook"))
	assert.Equal(t, 2, f.provider.count("UnregisterWebhook"))

	require.NoError(t, f.svc.UnregisterWebhook(ctx, "aud1"))
	st, _ = f.repo.Get(ctx, "aud1")
	assert.False(t, bool(st.WebhookConfigured))
	assert.Empty(t, f.provider.webhooks)
}

func TestWebhookNotRegisteredWithoutPublicURL(t *testing.T) {
	f := newFixture(t)
	svc := campaign.NewService(f.repo, f.provider, f.rec, f.renderer, "")
	registered, err := svc.RegisterWebhook(context.Background(), "aud1", true)
	require.NoError(t, err)
	assert.False(t, registered)
	assert.Equal(t, 0, f.provider.count("RegisterWebhook"))
}

func TestSendPreviewCleansUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.SendPreview(ctx, "aud1", campaign.PreviewRequest{Subject: "Preview of {audience_title}"})
	require.NoError(t, err)
	assert.True(t, res.Did(campaign.ActionPreviewSent))
	assert.True(t, res.Did(campaign.ActionCleanedUp))
	assert.Empty(t, f.provider.campaigns)
	assert.Empty(t, f.provider.templates)
	require.Len(t, f.provider.testSends, 1)
	for _, recipients := range f.provider.testSends {
		assert.Equal(t, []string{"editor@example.com"}, recipients)
	}
	assert.Equal(t, 1, f.provider.count("CreateCampaign"))
	assert.Equal(t, 1, f.provider.count("RemoveCampaign"))
	assert.Equal(t, 1, f.provider.count("RemoveTemplate"))
}

func TestSendPreviewCleansUpOnFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.testSendErr = &campaign.ProviderError{Status: 400, Message: "invalid test email"}

	res, err := f.svc.SendPreview(context.Background(), "aud1", campaign.PreviewRequest{Recipients: []string{" a@example.com ", ""}})
	require.Error(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, 400, res.Error.Status)
	assert.Empty(t, f.provider.campaigns)
	assert.Empty(t, f.provider.templates)
}

func TestSendPreviewNeedsRecipients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.repo.New()
	st.PreviewEmailAddresses = " , "
	require.NoError(t, f.repo.Save(ctx, "aud1", st))

	_, err := f.svc.SendPreview(ctx, "aud1", campaign.PreviewRequest{})
	assert.True(t, errors.Is(err, campaign.ErrNoRecipients))
	assert.Equal(t, 0, f.provider.count("CreateCampaign"))
}

func TestQueueEditing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.SetLinkResolver(mapLinks{"7": "https://news.example.com/?p=7"})

	st, err := f.svc.UpsertItem(ctx, "aud1", audience.DefaultSectionID, audience.Item{ID: "7", Title: "Seven"})
	require.NoError(t, err)
	assert.Equal(t, "https://news.example.com/?p=7", st.Queue.Sections[0].Items[0].LinkToContent)
	_, err = f.svc.UpsertItem(ctx, "aud1", audience.DefaultSectionID, audience.Item{ID: "8", Title: "Eight"})
	require.NoError(t, err)
	_, err = f.svc.UpsertItem(ctx, "aud2", audience.DefaultSectionID, audience.Item{ID: "7", Title: "Seven"})
	require.NoError(t, err)

	_, err = f.svc.UpsertItem(ctx, "aud1", "missing", audience.Item{ID: "9"})
	assert.ErrorIs(t, err, audience.ErrSectionNotFound)

	st, err = f.svc.ReorderSection(ctx, "aud1", audience.DefaultSectionID, []audience.ContentID{"8", "7"})
	require.NoError(t, err)
	assert.Equal(t, audience.ContentID("8"), st.Queue.Sections[0].Items[0].ID)

	sections, err := f.svc.Sections(ctx, "aud1")
	require.NoError(t, err)
	assert.Equal(t, []audience.SectionSummary{{ID: audience.DefaultSectionID, Title: "General", Items: 2}}, sections)

	found, err := f.svc.FindItem(ctx, "7")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "aud1", found[0].AudienceID)
	assert.Equal(t, 1, found[0].Index)
	assert.Equal(t, "aud2", found[1].AudienceID)

	n, err := f.svc.RemoveItem(ctx, "", "7")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	found, err = f.svc.FindItem(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestRefreshLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.UpsertItem(ctx, "aud1", audience.DefaultSectionID, audience.Item{ID: "3", LinkToContent: "https://old.example.com/3"})
	require.NoError(t, err)

	n, err := f.svc.RefreshLinks(ctx, "aud1")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "no resolver configured")

	f.svc.SetLinkResolver(mapLinks{"3": "https://news.example.com/three"})
	n, err = f.svc.RefreshLinks(ctx, "aud1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	st, _ := f.repo.Get(ctx, "aud1")
	assert.Equal(t, "https://news.example.com/three", st.Queue.Sections[0].Items[0].LinkToContent)

	n, err = f.svc.RefreshLinks(ctx, "never-saved")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRemoveManagedCampaignsAndTemplates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.campaigns["m1"] = &campaign.RemoteCampaign{ID: "m1", Title: "Digest (CampaignPress)", TemplateID: "mt1", Status: campaign.StatusSave}
	f.provider.campaigns["m2"] = &campaign.RemoteCampaign{ID: "m2", Title: "Digest (CampaignPress Test)", Status: campaign.StatusSave}
	f.provider.campaigns["x1"] = &campaign.RemoteCampaign{ID: "x1", Title: "Spring sale", TemplateID: "xt1", Status: campaign.StatusSave}
	f.provider.templates["mt1"] = &campaign.Template{ID: "mt1", Name: "CampaignPress-aud1"}
	f.provider.templates["mt2"] = &campaign.Template{ID: "mt2", Name: "CampaignPress-Preview-aud1"}
	f.provider.templates["xt1"] = &campaign.Template{ID: "xt1", Name: "Newsletter base"}

	removed, err := f.svc.RemoveManagedCampaigns(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m1", "m2"}, removed)
	assert.Contains(t, f.provider.campaigns, "x1")
	assert.NotContains(t, f.provider.templates, "mt1")
	assert.Contains(t, f.provider.templates, "xt1")

	removed, err = f.svc.RemoveManagedTemplates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mt2"}, removed)
	assert.Len(t, f.provider.templates, 1)
}

func TestResetAudiencesAndAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.UpsertItem(ctx, "aud1", audience.DefaultSectionID, audience.Item{ID: "1"})
	require.NoError(t, err)
	_, err = f.svc.UpsertItem(ctx, "local-only", audience.DefaultSectionID, audience.Item{ID: "1"})
	require.NoError(t, err)

	ids, err := f.svc.ResetAudiences(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"aud1", "local-only"}, ids)
	st, _ := f.repo.Get(ctx, "aud1")
	assert.Equal(t, 0, st.TotalContentItems())

	_, err = f.repo.UpdatePlugin(ctx, audience.PluginPatch{})
	require.NoError(t, err)
	require.NoError(t, f.svc.ResetAll(ctx))
	for _, id := range ids {
		exists, err := f.repo.Exists(ctx, id)
		require.NoError(t, err)
		assert.False(t, exists, id)
	}
}

func TestNextSend(t *testing.T) {
	f := newFixture(t)
	next, err := f.svc.NextSend(context.Background(), "aud1")
	require.NoError(t, err)
	// Default rule: Mondays at 12:30.
	assert.True(t, time.Date(2026, 3, 9, 12, 30, 0, 0, time.UTC).Equal(next), "got %v", next)
}
