package main

import (
	"coworking-alliance-backend/pkg/server"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSyncCalendarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-calendar",
		Short: "Pull Google Calendar events into the events table once (for cron)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := server.NewApp(cfg)
			if err != nil {
				return err
			}
			defer app.DB.Close()

			res, err := app.Services.Events.SyncCalendar(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().
				Int("created", res.Created).
				Int("updated", res.Updated).
				Int("skipped", res.Skipped).
				Msg("📅 Calendar sync finished")
			return nil
		},
	}
}
