package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stillmind/stillmind/internal/history"
	"github.com/stillmind/stillmind/internal/session"
)

func newStartCmd() *cobra.Command {
	var (
		ambienceID   string
		bellID       string
		repeatCount  int
		repeatWindow time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start <duration>",
		Short: "Start a meditation session",
		Long: `Start a meditation session of the given duration (e.g. "20m").
The session plays the configured ambience in a loop, rings repeat
bells when requested and finishes with a completion bell. Ctrl-C
stops the session early.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			duration, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", args[0], err)
			}
			if duration <= 0 {
				return fmt.Errorf("duration must be positive")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if ambienceID == "" {
				ambienceID = a.cfg.DefaultAmbience
			}
			if bellID == "" {
				bellID = a.cfg.DefaultBell
			}

			repeat := session.RepeatConfig{
				Enabled:   repeatCount > 0,
				Count:     repeatCount,
				BeforeEnd: repeatWindow,
			}

			return runSession(cmd, a, ambienceID, bellID, duration, repeat)
		},
	}

	cmd.Flags().StringVarP(&ambienceID, "ambience", "a", "", "ambience asset id (default from config; empty for silence)")
	cmd.Flags().StringVarP(&bellID, "bell", "b", "", "bell asset id (default from config)")
	cmd.Flags().IntVarP(&repeatCount, "repeat", "r", 0, "number of repeat bells near the end")
	cmd.Flags().DurationVar(&repeatWindow, "repeat-window", 3*time.Minute, "window before the end across which repeat bells are spread")
	return cmd
}

func runSession(cmd *cobra.Command, a *app, ambienceID, bellID string, duration time.Duration, repeat session.RepeatConfig) error {
	eng, err := a.buildEngine()
	if err != nil {
		return err
	}
	store, err := a.openHistory()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub := eng.Subscribe()
	startedAt := time.Now()
	if !eng.StartSession(ctx, ambienceID, bellID, duration, repeat) {
		return fmt.Errorf("could not start session")
	}
	cmd.Printf("Session started: %s\n", duration)

	entry := history.Entry{
		ID:         uuid.New(),
		StartedAt:  startedAt,
		Planned:    duration,
		AmbienceID: ambienceID,
		BellID:     bellID,
	}

	done := ctx.Done()
	for {
		select {
		case ev := <-sub.Completed:
			entry.Elapsed = ev.Elapsed
			entry.Completed = true
			a.notify().SessionCompleted(ev.Elapsed)
			cmd.Printf("Session complete: %s\n", ev.Elapsed)
			return store.Record(entry)

		case ev := <-sub.Aborted:
			entry.Elapsed = ev.Elapsed
			a.notify().SessionAborted(ev.Elapsed)
			cmd.Printf("Session stopped after %s\n", ev.Elapsed.Round(time.Second))
			return store.Record(entry)

		case <-done:
			// Ctrl-C: stop the session and wait for the abort event so
			// the elapsed time is recorded.
			done = nil
			eng.Stop(cmd.Context())
		}
	}
}
