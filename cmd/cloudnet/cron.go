package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/alert"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/cron"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

var freezeCmd = &cobra.Command{
	Use:   "freeze",
	Short: "Enqueue freeze tasks for settled volatile files",
	Long: `Scan the data portal for volatile files whose hold period has
passed and publish a freeze task for each file whose source ancestry
is fully frozen. Meant to run from a system scheduler; failures are
posted to Slack and reflected in the exit code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		c := buildClients(cfg)
		job := cron.NewFreezeJob(cron.FreezeOptions{
			Portal:               c.portal,
			Notifier:             alert.NewNotifier(cfg.SlackAPIToken, cfg.SlackChannelID),
			FreezeAfterDays:      cfg.FreezeAfterDays,
			FreezeModelAfterDays: cfg.FreezeModelAfterDays,
		})
		return job.Run(cmd.Context())
	},
}

var qcDate string

var submitQCCmd = &cobra.Command{
	Use:   "submit-qc",
	Short: "Enqueue quality-control tasks for a finished day",
	Long: `Publish one qc task per product file measured on the target
day, yesterday by default. Lets daily reports pick up quality-control
releases without reprocessing anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		var date types.Date
		if qcDate != "" {
			if date, err = types.ParseDate(qcDate); err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
		}
		c := buildClients(cfg)
		job := cron.NewQCJob(cron.QCOptions{
			Portal:   c.portal,
			Notifier: alert.NewNotifier(cfg.SlackAPIToken, cfg.SlackChannelID),
			Date:     date,
		})
		return job.Run(cmd.Context())
	},
}

func init() {
	submitQCCmd.Flags().StringVar(&qcDate, "date", "", "Day to check (YYYY-MM-DD, default yesterday)")
}
