package main

import (
	"github.com/spf13/cobra"

	syncx "github.com/mind-engage/mindengage-mastery/internal/sync"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List domain events (session completions, enrollment outcomes)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetInt64("since")
		limit, _ := cmd.Flags().GetInt("limit")
		h, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer h.Close()
		evs, err := syncx.NewEventRepo(h).Since(cmd.Context(), since, limit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), evs)
	},
}

func init() {
	eventsCmd.Flags().Int64("since", 0, "Only events with a sequence number greater than this")
	eventsCmd.Flags().Int("limit", 100, "Maximum events to list (1-1000)")
}
