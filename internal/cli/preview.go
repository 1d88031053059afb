package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Audition configured sounds",
	}
	cmd.AddCommand(newPreviewAmbienceCmd(), newPreviewBellCmd())
	return cmd
}

func newPreviewAmbienceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ambience <id>",
		Short: "Play an ambience sound until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			eng, err := a.buildEngine()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !eng.PreviewAmbience(ctx, args[0]) {
				return fmt.Errorf("cannot preview %q", args[0])
			}
			cmd.Printf("Previewing %s (Ctrl-C to stop)\n", args[0])
			<-ctx.Done()
			eng.StopPreview()
			return nil
		},
	}
}

func newPreviewBellCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "bell <id>",
		Short: "Ring a bell sound once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			eng, err := a.buildEngine()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !eng.PreviewBell(ctx, args[0]) {
				return fmt.Errorf("cannot preview %q", args[0])
			}

			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
			eng.StopPreview()
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to let the bell ring before exiting")
	return cmd
}
