package cli

import (
	"github.com/spf13/cobra"
)

// Execute runs the stillmind command tree.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stillmind",
		Short:         "Meditation timer with ambience, bells and session history",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newStartCmd(),
		newPreviewCmd(),
		newAssetsCmd(),
		newHistoryCmd(),
	)
	return root
}
