package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/campaign"
	"github.com/ignite/campaignsync/internal/pkg/distlock"
	"github.com/ignite/campaignsync/internal/schedule"
)

var audiencesCmd = &cobra.Command{
	Use:   "audiences",
	Short: "List Mailchimp audiences with their local state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		auds, err := app.Service.Audiences(cmd.Context(), force)
		if err != nil {
			return err
		}
		for _, a := range auds {
			scheduled := "-"
			if a.Scheduled != nil {
				scheduled = schedule.FormatSendTime(*a.Scheduled)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-24s %-9s %-24s %s\n", a.ID, a.Phase, a.State, scheduled, a.Title)
		}
		return nil
	},
}

var nextSendCmd = &cobra.Command{
	Use:   "next-send AUDIENCE_ID",
	Short: "Print when the audience would send next under its current rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := app.Service.NextSend(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s UTC)\n", schedule.FormatSendTime(t), schedule.FormatSendTime(t.UTC()))
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [AUDIENCE_ID...]",
	Short: "Schedule every active audience that has no pending send",
	Long: `reconcile books the next send of each active audience whose campaign is
not scheduled, for example after a missed webhook. With no arguments every
stored audience is checked. Runs on hosts sharing a Redis cache or a
PostgreSQL store exclude each other.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("lock-ttl")
		err := distlock.Run(cmd.Context(), app.Lock("campaignsync:reconcile", ttl), func(ctx context.Context) error {
			return reconcileAll(ctx, cmd, args)
		})
		if errors.Is(err, distlock.ErrHeld) {
			fmt.Fprintln(cmd.ErrOrStderr(), "another reconcile is running; skipped")
			return nil
		}
		return err
	},
}

func reconcileAll(ctx context.Context, cmd *cobra.Command, args []string) error {
	ids := args
	if len(ids) == 0 {
		var err error
		if ids, err = app.Repo.AudienceIDs(ctx); err != nil {
			return err
		}
	}
	var errs []error
	for _, id := range ids {
		res, err := reconcile(ctx, id)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
			errs = append(errs, err)
			continue
		}
		if res == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing to do\n", id)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, res.Phase)
	}
	return errors.Join(errs...)
}

func reconcile(ctx context.Context, audienceID string) (*campaign.Result, error) {
	st, err := app.Repo.Get(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	if st.State != audience.StateActive || st.Campaign.EmailScheduled != nil {
		return nil, nil
	}
	return app.Reconciler.Schedule(ctx, audienceID)
}

func resultCmd(use, short string, run func(context.Context, string) (*campaign.Result, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " AUDIENCE_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := run(cmd.Context(), args[0])
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
					return perr
				}
			}
			return err
		},
	}
}

var (
	scheduleCmd = resultCmd("schedule", "Book the audience's next send", func(ctx context.Context, id string) (*campaign.Result, error) {
		return app.Reconciler.Schedule(ctx, id)
	})
	unscheduleCmd = resultCmd("unschedule", "Cancel the audience's pending send", func(ctx context.Context, id string) (*campaign.Result, error) {
		return app.Reconciler.Unschedule(ctx, id)
	})
	syncTemplateCmd = resultCmd("sync-template", "Re-render and push the audience's template", func(ctx context.Context, id string) (*campaign.Result, error) {
		return app.Reconciler.SyncTemplate(ctx, id)
	})
)

var registerWebhooksCmd = &cobra.Command{
	Use:   "register-webhooks",
	Short: "Force webhook registration for every audience",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		auds, err := app.Service.RegisterWebhooks(cmd.Context())
		for _, a := range auds {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: registered=%t\n", a.ID, a.Settings.WebhookConfigured)
		}
		return err
	},
}

var removeCmd = &cobra.Command{
	Use:       "remove campaigns|templates",
	Short:     "Delete every campaign or template created by campaignsync",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"campaigns", "templates"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var removed []string
		var err error
		if args[0] == "campaigns" {
			removed, err = app.Service.RemoveManagedCampaigns(cmd.Context())
		} else {
			removed, err = app.Service.RemoveManagedTemplates(cmd.Context())
		}
		for _, id := range removed {
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
		}
		return err
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset audience settings to defaults",
	Long: `reset overwrites every audience's settings with defaults. With --all the
plugin settings are deleted too. Remote campaigns are left alone; use
"remove campaigns" for those.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all {
			if err := app.Service.ResetAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "all settings deleted")
			return nil
		}
		ids, err := app.Service.ResetAudiences(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset %d audiences\n", len(ids))
		return nil
	},
}

func init() {
	audiencesCmd.Flags().Bool("force", false, "bypass the audience cache")
	resetCmd.Flags().Bool("all", false, "also delete the plugin settings")
	reconcileCmd.Flags().Duration("lock-ttl", 10*time.Minute, "expiry of the Redis reconcile lock")
}
