// Command campaignctl runs reconciler and maintenance operations against
// the configured stores without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/campaignsync/internal/bootstrap"
	"github.com/ignite/campaignsync/internal/config"
)

var (
	configPath string
	app        *bootstrap.App
)

var rootCmd = &cobra.Command{
	Use:   "campaignctl",
	Short: "Manage recurring Mailchimp campaigns",
	Long: `campaignctl schedules, unschedules and inspects the recurring campaign
of each audience, and runs the maintenance tasks of the settings screen.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadFromEnv(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		bootstrap.ConfigureLogging(cfg.Log)
		app, err = bootstrap.New(cmd.Context(), cfg)
		return err
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if app == nil {
			return nil
		}
		return app.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to the YAML config file")
	rootCmd.AddCommand(
		audiencesCmd,
		nextSendCmd,
		reconcileCmd,
		scheduleCmd,
		unscheduleCmd,
		syncTemplateCmd,
		registerWebhooksCmd,
		removeCmd,
		resetCmd,
	)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
