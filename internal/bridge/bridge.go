// Package bridge talks to an optional higher-privileged native audio
// service over D-Bus. Where present, looping, fading and bell
// scheduling survive background and doze states more reliably than
// the portable in-process path; where absent, the engine runs the
// portable path and behaves identically.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	busName    = "org.stillmind.AudioService1"
	objectPath = "/org/stillmind/AudioService1"
	iface      = "org.stillmind.AudioService1"
)

// Bridge is the native scheduling and playback surface. All calls are
// fire-and-forget from the engine's point of view except LoadAndPlay,
// which reports success or failure.
type Bridge interface {
	LoadAndPlay(ctx context.Context, uri string) error
	Stop(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	FadeOutAndStop(ctx context.Context, d time.Duration) error
	ScheduleBells(ctx context.Context, uri string, offsets []time.Duration) error
	CancelBells(ctx context.Context) error
}

// dbusBridge is the real client.
type dbusBridge struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	log  *slog.Logger
}

var _ Bridge = (*dbusBridge)(nil)

// Detect probes the session bus for the native audio service and
// returns a client for it, or nil when the capability is absent. A
// nil result is not an error: the engine degrades to the portable
// path.
func Detect(log *slog.Logger) Bridge {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "bridge")

	conn, err := dbus.SessionBus()
	if err != nil {
		log.Debug("no session bus, native bridge unavailable", "error", err)
		return nil
	}

	var owned bool
	err = conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, busName).Store(&owned)
	if err != nil || !owned {
		log.Debug("native audio service not present")
		return nil
	}

	log.Info("native audio service detected", "name", busName)
	return &dbusBridge{
		conn: conn,
		obj:  conn.Object(busName, objectPath),
		log:  log,
	}
}

func (b *dbusBridge) call(ctx context.Context, method string, args ...any) error {
	call := b.obj.CallWithContext(ctx, iface+"."+method, 0, args...)
	if call.Err != nil {
		return fmt.Errorf("bridge %s: %w", method, call.Err)
	}
	return nil
}

func (b *dbusBridge) LoadAndPlay(ctx context.Context, uri string) error {
	return b.call(ctx, "LoadAndPlay", uri)
}

func (b *dbusBridge) Stop(ctx context.Context) error {
	return b.call(ctx, "Stop")
}

func (b *dbusBridge) Pause(ctx context.Context) error {
	return b.call(ctx, "Pause")
}

func (b *dbusBridge) Resume(ctx context.Context) error {
	return b.call(ctx, "Resume")
}

func (b *dbusBridge) FadeOutAndStop(ctx context.Context, d time.Duration) error {
	return b.call(ctx, "FadeOutAndStop", uint32(d.Milliseconds()))
}

func (b *dbusBridge) ScheduleBells(ctx context.Context, uri string, offsets []time.Duration) error {
	secs := make([]float64, len(offsets))
	for i, off := range offsets {
		secs[i] = off.Seconds()
	}
	return b.call(ctx, "ScheduleBells", uri, secs)
}

func (b *dbusBridge) CancelBells(ctx context.Context) error {
	return b.call(ctx, "CancelBells")
}
