// Package notify sends desktop notifications for session events.
package notify

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gen2brain/beeep"
)

const appTitle = "Stillmind"

// Notifier posts desktop notifications. A disabled notifier is valid
// and does nothing.
type Notifier struct {
	enabled bool
	log     *slog.Logger
}

func New(enabled bool, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		enabled: enabled,
		log:     log.With("component", "notify"),
	}
}

// SessionCompleted announces a finished session.
func (n *Notifier) SessionCompleted(elapsed time.Duration) {
	n.send("Session complete", "You sat for "+humanDuration(elapsed)+".")
}

// SessionAborted announces a session stopped before its planned end.
func (n *Notifier) SessionAborted(elapsed time.Duration) {
	n.send("Session stopped", "Stopped after "+humanDuration(elapsed)+".")
}

func (n *Notifier) send(title, body string) {
	if !n.enabled {
		return
	}
	if err := beeep.Notify(appTitle+": "+title, body, ""); err != nil {
		n.log.Warn("desktop notification failed", "error", err)
	}
}

// humanDuration renders a duration the way a person would say it.
// RelTime collapses anything under a minute to "now", so short
// sessions fall back to a plain seconds rendering.
func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	ref := time.Now()
	return humanize.RelTime(ref.Add(-d), ref, "", "")
}
