package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tokfetch/tokfetch/internal/db"
)

var (
	stateLimit int
	stateEvent string
	stateURL   string
)

// stateCmd displays the fetch-event audit trail.
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the fetch-event history from the state database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if stateURL != "" {
			return db.DisplayLatest(cmd.Context(), getDB(), stateURL)
		}
		return db.DisplayHistory(cmd.Context(), getDB(), stateEvent, stateLimit)
	},
}

func init() {
	stateCmd.Flags().IntVar(&stateLimit, "limit", 50, "Maximum number of event records to display")
	stateCmd.Flags().StringVar(&stateEvent, "event", "", "Filter by event type (e.g. fetch_end, error)")
	stateCmd.Flags().StringVar(&stateURL, "url", "", "Show only the most recent event for this URL")
}
