package cli

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse recorded sessions",
	}
	cmd.AddCommand(newHistoryListCmd(), newHistoryStatsCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			store, err := a.openHistory()
			if err != nil {
				return err
			}
			entries, err := store.List(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				cmd.Println("No sessions recorded yet")
				return nil
			}

			for _, e := range entries {
				status := "stopped"
				if e.Completed {
					status = "completed"
				}
				cmd.Printf("%s  %-9s %6s of %-6s ambience=%s bell=%s\n",
					humanize.Time(e.StartedAt),
					status,
					e.Elapsed.Round(time.Second),
					e.Planned,
					orDash(e.AmbienceID),
					orDash(e.BellID),
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of sessions to show")
	return cmd
}

func newHistoryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show totals and the current streak",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			store, err := a.openHistory()
			if err != nil {
				return err
			}
			stats, err := store.Stats()
			if err != nil {
				return err
			}

			cmd.Printf("Sessions:   %d (%d completed)\n", stats.TotalSessions, stats.Completed)
			cmd.Printf("Total time: %s\n", stats.TotalTime.Round(time.Minute))
			cmd.Printf("Streak:     %d day(s)\n", stats.StreakDays)
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
