package campaign_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/campaign"
	"github.com/ignite/campaignsync/internal/notify"
	"github.com/ignite/campaignsync/internal/schedule"
)

func TestSaveSettingsCreatesAndSchedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.rec.SaveSettings(ctx, "aud1", mondayNine())
	require.NoError(t, err)
	assert.Nil(t, res.Error)
	assert.Equal(t, campaign.PhaseScheduled, res.Phase)

	assert.Equal(t, 1, f.provider.count("CreateCampaign"))
	assert.Equal(t, 1, f.provider.count("CreateTemplate"))
	assert.Equal(t, 1, f.provider.count("ScheduleCampaign"))
	assert.Equal(t, 1, f.provider.count("ClearDrafts"))

	st, err := f.repo.Get(ctx, "aud1")
	require.NoError(t, err)
	want := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	require.NotNil(t, st.Campaign.EmailScheduled)
	assert.True(t, want.Equal(*st.Campaign.EmailScheduled), "got %v", st.Campaign.EmailScheduled)
	assert.NotEmpty(t, st.Campaign.RemoteID)
	assert.NotEmpty(t, st.Campaign.RemoteFolderID)
	assert.Equal(t, "CampaignPress-aud1", st.Campaign.EmailTemplate.RemoteName)

	remote := f.provider.campaigns[st.Campaign.RemoteID]
	require.NotNil(t, remote)
	assert.Equal(t, st.Campaign.EmailTemplate.RemoteID, remote.TemplateID)
	assert.Equal(t, "Weekly Digest: 0 new posts for Wednesday, March 4", remote.Subject)
	assert.True(t, want.Equal(f.provider.scheduled[remote.ID]))
	require.Len(t, f.provider.folders, 1)
	assert.Equal(t, "Weekly Digest", f.provider.folders[0].Name)

	assert.Equal(t, []notify.EventType{notify.EventScheduled}, f.events.types())
	assert.True(t, res.Did(campaign.ActionCampaignCreated))
	assert.True(t, res.Did(campaign.ActionScheduled))
}

func TestSaveSettingsWithoutChangesLeavesRemoteAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.rec.SaveSettings(ctx, "aud1", mondayNine())
	require.NoError(t, err)
	f.provider.resetCalls()

	tab := "design"
	res, err := f.rec.SaveSettings(ctx, "aud1", campaign.Update{ActiveEditorTab: &tab})
	require.NoError(t, err)
	assert.Equal(t, campaign.PhaseScheduled, res.Phase)
	assert.Equal(t, 0, f.provider.count("CreateCampaign"))
	assert.Equal(t, 0, f.provider.count("CreateTemplate"))
	assert.Equal(t, 0, f.provider.count("ScheduleCampaign"))
	assert.Equal(t, 1, f.provider.count("GetCampaign"))
	assert.Equal(t, 1, f.provider.count("GetTemplate"))
	assert.Equal(t, "design", res.Settings.ActiveEditorTab)
}

func TestSaveSettingsRecreatesDeletedCampaign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.rec.SaveSettings(ctx, "aud1", mondayNine())
	require.NoError(t, err)
	st, _ := f.repo.Get(ctx, "aud1")
	oldID := st.Campaign.RemoteID
	delete(f.provider.campaigns, oldID)
	f.provider.resetCalls()

	res, err := f.rec.SaveSettings(ctx, "aud1", campaign.Update{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.provider.count("CreateCampaign"))
	assert.Equal(t, 0, f.provider.count("CreateTemplate"))
	assert.Equal(t, 1, f.provider.count("ScheduleCampaign"))
	assert.NotEqual(t, oldID, res.Settings.Campaign.RemoteID)
	assert.Equal(t, campaign.PhaseScheduled, res.Phase)
}

func TestSaveSettingsRecreatesDeletedFolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.rec.SaveSettings(ctx, "aud1", mondayNine())
	require.NoError(t, err)
	st, _ := f.repo.Get(ctx, "aud1")
	staleFolder := st.Campaign.RemoteFolderID
	delete(f.provider.campaigns, st.Campaign.RemoteID)
	f.provider.folders = nil

	// The provider no longer knows the campaign; local state is cleared anyway.
	_, err = f.rec.SaveSettings(ctx, "aud1", stateUpdate(audience.StateInactive))
	assert.Error(t, err)
	f.provider.resetCalls()
	res, err := f.rec.SaveSettings(ctx, "aud1", stateUpdate(audience.StateActive))
	require.NoError(t, err)

	assert.Equal(t, 1, f.provider.count("CreateCampaignFolder"))
	require.Len(t, f.provider.folders, 1)
	folderID := f.provider.folders[0].ID
	assert.NotEqual(t, staleFolder, folderID)
	assert.Equal(t, folderID, res.Settings.Campaign.RemoteFolderID)
	assert.Equal(t, folderID, f.provider.campaigns[res.Settings.Campaign.RemoteID].FolderID)
}

func TestSaveSettingsKeepsExistingFolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.rec.SaveSettings(ctx, "aud1", mondayNine())
	require.NoError(t, err)
	st, _ := f.repo.Get(ctx, "aud1")
	delete(f.provider.campaigns, st.Campaign.RemoteID)

	res, err := f.rec.SaveSettings(ctx, "aud1", campaign.Update{})
	require.NoError(t, err)
	require.Len(t, f.provider.folders, 1, "folders are matched by name")
	assert.Equal(t, st.Campaign.RemoteFolderID, res.Settings.Campaign.RemoteFolderID)
}

func TestSaveSettingsRecreatesDeletedTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.rec.SaveSettings(ctx, "aud1", mondayNine())
	require.NoError(t, err)
	st, _ := f.repo.Get(ctx, "aud1")
	oldTemplate := st.Campaign.EmailTemplate.RemoteID
	delete(f.provider.templates, oldTemplate)
	f.provider.resetCalls()

	res, err := f.rec.SaveSettings(ctx, "aud1", campaign.Update{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.provider.count("CreateTemplate"))
	assert.Equal(t, 1, f.provider.count("AttachTemplate"))
	assert.Equal(t, 0, f.provider.count("ScheduleCampaign"))
	newTemplate := res.Settings.Campaign.EmailTemplate.RemoteID
	assert.NotEqual(t, oldTemplate, newTemplate)
	assert.Equal(t, newTemplate, f.provider.campaigns[st.Campaign.RemoteID].TemplateID)
}

func TestScheduleFailureLeavesAudienceUnscheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.scheduleErr = &campaign.ProviderError{Status: 400, Message: "schedule_time is in the past"}

	res, err := f.rec.SaveSettings(ctx, "aud1", mondayNine())
	require.Error(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, 400, res.Error.Status)

	st, err := f.repo.Get(ctx, "aud1")
	require.NoError(t, err)
	assert.Nil(t, st.Campaign.EmailScheduled)
	assert.NotEmpty(t, st.Campaign.RemoteID)
	assert.Equal(t, campaign.PhaseDrafting, campaign.PhaseOf(st))
	assert.Contains(t, f.events.types(), notify.EventFailed)
	assert.NotContains(t, f.events.types(), notify.EventScheduled)
}

func TestDeactivateUnschedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.rec.SaveSettings(ctx, "aud1", mondayNine())
	require.NoError(t, err)
	st, _ := f.repo.Get(ctx, "aud1")
	remoteID := st.Campaign.RemoteID

	res, err := f.rec.SaveSettings(ctx, "aud1", stateUpdate(audience.StateInactive))
	require.NoError(t, err)
	assert.Equal(t, campaign.PhaseUnmanaged, res.Phase)
	assert.Equal(t, campaign.StatusPaused, f.provider.campaigns[remoteID].Status)
	assert.Contains(t, f.events.types(), notify.EventUnscheduled)

	st, _ = f.repo.Get(ctx, "aud1")
	assert.Empty(t, st.Campaign.RemoteID)
	assert.Nil(t, st.Campaign.EmailScheduled)
}

func TestUnscheduleFailureStillClearsLocalState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.rec.SaveSettings(ctx, "aud1", mondayNine())
	require.NoError(t, err)
	f.provider.unscheduleErr = &campaign.ProviderError{Status: 400, Message: "campaign is not scheduled"}

	res, err := f.rec.SaveSettings(ctx, "aud1", stateUpdate(audience.StateInactive))
	require.Error(t, err)
	var pe *campaign.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 400, pe.Status)
	require.NotNil(t, res.Error)

	st, err := f.repo.Get(ctx, "aud1")
	require.NoError(t, err)
	assert.Empty(t, st.Campaign.RemoteID)
	assert.Nil(t, st.Campaign.EmailScheduled)
	assert.Equal(t, audience.StateInactive, st.State)
}

func TestSaveSettingsRejectsIncompleteRule(t *testing.T) {
	f := newFixture(t)
	freq := schedule.FrequencyWeekly
	rule := schedule.Rule{Times: []string{"09:00"}}
	_, err := f.rec.SaveSettings(context.Background(), "aud1", campaign.Update{Campaign: &campaign.CampaignUpdate{
		EmailFrequency:    &freq,
		FrequencySettings: &rule,
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, audience.ErrInvalidSettings))
	assert.Equal(t, 0, f.provider.count("CreateCampaign"))
}

func TestScheduleInactiveAudience(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.repo.New()
	st.State = audience.StateInactive
	require.NoError(t, f.repo.Save(ctx, "aud1", st))

	_, err := f.rec.Schedule(ctx, "aud1")
	assert.ErrorIs(t, err, campaign.ErrInactive)
	assert.Equal(t, 0, f.provider.count("ScheduleCampaign"))
}

func TestSyncTemplateUpdatesInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.rec.SaveSettings(ctx, "aud1", mondayNine())
	require.NoError(t, err)
	f.provider.resetCalls()

	res, err := f.rec.SyncTemplate(ctx, "aud1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.provider.count("UpdateTemplate"))
	assert.Equal(t, 0, f.provider.count("CreateTemplate"))
	assert.Equal(t, 1, f.provider.count("AttachTemplate"))
	assert.True(t, res.Did(campaign.ActionTemplateUpdated))
	assert.Equal(t, "<html><body>aud1</body></html>", f.provider.html[res.Settings.Campaign.EmailTemplate.RemoteID])
}

func TestConfirmSentRotatesAndReschedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.UpsertItem(ctx, "aud1", audience.DefaultSectionID, audience.Item{ID: "1", Title: "Evergreen", KeepInQueue: true})
	require.NoError(t, err)
	_, err = f.svc.UpsertItem(ctx, "aud1", audience.DefaultSectionID, audience.Item{ID: "2", Title: "News"})
	require.NoError(t, err)
	_, err = f.rec.SaveSettings(ctx, "aud1", mondayNine())
	require.NoError(t, err)

	st, _ := f.repo.Get(ctx, "aud1")
	sentID := st.Campaign.RemoteID
	assert.Equal(t, "Weekly Digest: 2 new posts for Wednesday, March 4", f.provider.campaigns[sentID].Subject)

	sentAt := time.Date(2026, 3, 9, 9, 5, 0, 0, time.UTC)
	f.clock.Set(sentAt)
	f.provider.campaigns[sentID].Status = campaign.StatusSent

	res, err := f.rec.ConfirmSent(ctx, "aud1", sentID, "aud1")
	require.NoError(t, err)
	assert.True(t, res.Handled)
	assert.Equal(t, campaign.PhaseScheduled, res.Phase)
	assert.True(t, res.Did(campaign.ActionRotated))

	st, _ = f.repo.Get(ctx, "aud1")
	require.NotNil(t, st.LastSendDate)
	assert.True(t, sentAt.Equal(*st.LastSendDate))
	assert.NotEqual(t, sentID, st.Campaign.RemoteID)
	require.NotNil(t, st.Campaign.EmailScheduled)
	assert.True(t, time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC).Equal(*st.Campaign.EmailScheduled))

	section, ok := st.Queue.Section(audience.DefaultSectionID)
	require.True(t, ok)
	require.Len(t, section.Items, 1)
	assert.Equal(t, audience.ContentID("1"), section.Items[0].ID)

	assert.Equal(t, 1, f.provider.count("CreateTemplate"), "template is reused across sends")
	assert.Equal(t, 2, f.provider.count("CreateCampaign"))
	assert.Equal(t, "Weekly Digest: 1 new posts for Monday, March 9", f.provider.campaigns[st.Campaign.RemoteID].Subject)
	assert.Equal(t, []notify.EventType{
		notify.EventScheduled, notify.EventSent, notify.EventScheduled, notify.EventRescheduled,
	}, f.events.types())

	// A repeated delivery no longer matches the tracked campaign.
	again, err := f.rec.ConfirmSent(ctx, "aud1", sentID, "aud1")
	require.NoError(t, err)
	assert.False(t, again.Handled)
	st2, _ := f.repo.Get(ctx, "aud1")
	assert.Equal(t, st.Campaign.RemoteID, st2.Campaign.RemoteID)
}

func TestConfirmSentBiweeklyRollsToNextMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	freq := schedule.FrequencyBiweekly
	rule := schedule.Rule{Dates: []int{5}, Times: []string{"09:00"}, Sequencing: schedule.SequencingEveryTwo}
	res, err := f.rec.SaveSettings(ctx, "aud1", campaign.Update{Campaign: &campaign.CampaignUpdate{
		EmailFrequency:    &freq,
		FrequencySettings: &rule,
	}})
	require.NoError(t, err)
	require.NotNil(t, res.Settings.Campaign.EmailScheduled)
	assert.True(t, time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC).Equal(*res.Settings.Campaign.EmailScheduled))

	sends := []struct {
		webhookAt time.Time
		want      time.Time
	}{
		{time.Date(2026, 3, 5, 9, 5, 0, 0, time.UTC), time.Date(2026, 3, 19, 9, 0, 0, 0, time.UTC)},
		{time.Date(2026, 3, 19, 9, 5, 0, 0, time.UTC), time.Date(2026, 4, 5, 9, 0, 0, 0, time.UTC)},
		{time.Date(2026, 4, 5, 9, 5, 0, 0, time.UTC), time.Date(2026, 4, 19, 9, 0, 0, 0, time.UTC)},
	}
	for _, send := range sends {
		st, err := f.repo.Get(ctx, "aud1")
		require.NoError(t, err)
		f.clock.Set(send.webhookAt)
		res, err := f.rec.ConfirmSent(ctx, "aud1", st.Campaign.RemoteID, "aud1")
		require.NoError(t, err)
		require.True(t, res.Handled)
		require.Equal(t, campaign.PhaseScheduled, res.Phase)

		next := res.Settings.Campaign.EmailScheduled
		require.NotNil(t, next)
		assert.True(t, send.want.Equal(*next), "after %s got %s", send.webhookAt, next)
		assert.False(t, next.Before(send.webhookAt))
		assert.True(t, send.want.Equal(f.provider.scheduled[res.Settings.Campaign.RemoteID]))
	}
}

func TestConfirmSentIgnoresMismatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.rec.SaveSettings(ctx, "aud1", mondayNine())
	require.NoError(t, err)
	st, _ := f.repo.Get(ctx, "aud1")
	f.provider.resetCalls()

	res, err := f.rec.ConfirmSent(ctx, "aud1", st.Campaign.RemoteID, "other-list")
	require.NoError(t, err)
	assert.False(t, res.Handled)

	res, err = f.rec.ConfirmSent(ctx, "aud1", "someone-elses-campaign", "aud1")
	require.NoError(t, err)
	assert.False(t, res.Handled)

	assert.Empty(t, f.provider.calls)
	after, _ := f.repo.Get(ctx, "aud1")
	assert.Equal(t, st.Campaign.RemoteID, after.Campaign.RemoteID)
	assert.Nil(t, after.LastSendDate)
}

func TestConfirmSentImmediateDoesNotReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	freq := schedule.FrequencyImmediate
	res, err := f.rec.SaveSettings(ctx, "aud1", campaign.Update{Campaign: &campaign.CampaignUpdate{EmailFrequency: &freq}})
	require.NoError(t, err)
	require.NotNil(t, res.Settings.Campaign.EmailScheduled)
	assert.True(t, time.Date(2026, 3, 4, 10, 15, 0, 0, time.UTC).Equal(*res.Settings.Campaign.EmailScheduled))

	sentID := res.Settings.Campaign.RemoteID
	res, err = f.rec.ConfirmSent(ctx, "aud1", sentID, "aud1")
	require.NoError(t, err)
	assert.True(t, res.Handled)
	assert.Equal(t, campaign.PhaseSentPendingReschedule, res.Phase)
	assert.Empty(t, res.Settings.Campaign.RemoteID)
	assert.Nil(t, res.Settings.Campaign.EmailScheduled)
	assert.Equal(t, 1, f.provider.count("CreateCampaign"))
}

func TestUpdateDecodeIgnoresRemoteIDs(t *testing.T) {
	body := `{
		"state": "0",
		"campaign": {
			"mc_id": "forged",
			"email_subject": "Hello",
			"email_frequency": "monthly",
			"email_frequency_settings": {"dates": [15], "times": ["08:00"]}
		}
	}`
	var upd campaign.Update
	require.NoError(t, json.Unmarshal([]byte(body), &upd))

	st := audience.Default(schedule.UTC, "")
	upd.Apply(st)
	assert.Equal(t, audience.StateInactive, st.State)
	assert.Empty(t, st.Campaign.RemoteID)
	assert.Equal(t, "Hello", st.Campaign.EmailSubject)
	assert.Equal(t, schedule.FrequencyMonthly, st.Campaign.EmailFrequency)
	assert.Equal(t, []int{15}, st.Campaign.FrequencySettings.Dates)
	assert.Equal(t, audience.DefaultSectionID, st.Queue.Sections[0].ID)
}

func TestPhaseOf(t *testing.T) {
	when := wednesday
	tests := []struct {
		name string
		st   audience.Settings
		want campaign.Phase
	}{
		{"inactive", audience.Settings{State: audience.StateInactive}, campaign.PhaseUnmanaged},
		{"active without campaign", audience.Settings{State: audience.StateActive}, campaign.PhaseDrafting},
		{"active with draft", audience.Settings{State: audience.StateActive, Campaign: audience.CampaignConfig{RemoteID: "c1"}}, campaign.PhaseDrafting},
		{"scheduled", audience.Settings{State: audience.StateActive, Campaign: audience.CampaignConfig{RemoteID: "c1", EmailScheduled: &when}}, campaign.PhaseScheduled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, campaign.PhaseOf(&tt.st))
		})
	}
}
