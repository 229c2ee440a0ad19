package main

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/f9global/ferret9/internal/ferret9/activity"
	"github.com/f9global/ferret9/internal/ferret9/app"
	"github.com/f9global/ferret9/internal/ferret9/config"
)

var activityTypes = []string{
	activity.TypeSignIn,
	activity.TypeSignOut,
	activity.TypeUpdate,
	activity.TypeBreak,
	activity.TypeBackFromBreak,
}

func newActivityCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Work-log maintenance",
	}
	cmd.AddCommand(newActivityRecordCmd(root))
	return cmd
}

func newActivityRecordCmd(root *rootOptions) *cobra.Command {
	var (
		userID, typ, details string
		duration             float64
		at                   string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Write a work-log entry through the configured activity backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !lo.Contains(activityTypes, typ) {
				return fmt.Errorf("unknown activity type %q (want one of %v)", typ, activityTypes)
			}
			ts := time.Now().UTC()
			if at != "" {
				var err error
				if ts, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}

			cfg, err := config.LoadForCommands(root.envFile)
			if err != nil {
				return err
			}
			logger, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			store, closeStore, err := app.NewActivityStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			if err := store.Record(cmd.Context(), activity.Entry{
				UserID:       userID,
				ActivityType: typ,
				Details:      details,
				Duration:     duration,
				Timestamp:    ts,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s for %s at %s.\n", typ, userID, ts.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Discord user id")
	cmd.Flags().StringVar(&typ, "type", activity.TypeUpdate, "activity type")
	cmd.Flags().StringVar(&details, "details", "", "free-text details")
	cmd.Flags().Float64Var(&duration, "duration", 0, "duration in minutes")
	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 timestamp (default now)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
