// Package cli wires configuration, the audio/timer engine, the asset
// catalog and the history store behind the stillmind command tree.
package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/stillmind/stillmind/internal/assets"
	"github.com/stillmind/stillmind/internal/audio"
	"github.com/stillmind/stillmind/internal/bridge"
	"github.com/stillmind/stillmind/internal/config"
	"github.com/stillmind/stillmind/internal/engine"
	"github.com/stillmind/stillmind/internal/history"
	"github.com/stillmind/stillmind/internal/logger"
	"github.com/stillmind/stillmind/internal/notify"
)

// app holds the lazily-built application components shared by the
// commands. Commands only pay for what they use: the history commands
// never touch the speaker.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	catalog  *assets.Catalog
	engine   *engine.Engine
	store    *history.Store
	notifier *notify.Notifier
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) openCatalog() (*assets.Catalog, error) {
	if a.catalog != nil {
		return a.catalog, nil
	}
	catalog, err := assets.NewCatalog(a.cfg.Assets, a.cfg.ResolveCacheDir(), a.log)
	if err != nil {
		return nil, err
	}
	if err := catalog.Watch(); err != nil {
		a.log.Warn("cache watch unavailable", "error", err)
	}
	a.catalog = catalog
	return catalog, nil
}

func (a *app) buildEngine() (*engine.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	catalog, err := a.openCatalog()
	if err != nil {
		return nil, err
	}

	var br bridge.Bridge
	if !a.cfg.Engine.DisableNativePath {
		br = bridge.Detect(a.log)
	}

	a.engine = engine.New(
		audio.NewBeepEngine(nil),
		catalog,
		br,
		engineConfig(a.cfg.Engine),
		a.log,
	)
	return a.engine, nil
}

func (a *app) openHistory() (*history.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := history.Open()
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *app) notify() *notify.Notifier {
	if a.notifier == nil {
		a.notifier = notify.New(a.cfg.Notify.Enabled, a.log)
	}
	return a.notifier
}

func (a *app) close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.catalog != nil {
		a.catalog.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// engineConfig applies the configured overrides on top of the stock
// tuning. Zero values keep the defaults.
func engineConfig(ec config.EngineConfig) engine.Config {
	cfg := engine.DefaultConfig()
	setMs := func(dst *time.Duration, ms int) {
		if ms > 0 {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
	setMs(&cfg.Ambience.FadeIn, ec.FadeInMs)
	setMs(&cfg.Ambience.PreloadWindow, ec.PreloadWindowMs)
	setMs(&cfg.Ambience.OverlapWindow, ec.OverlapWindowMs)
	setMs(&cfg.Bell.FadeIn, ec.BellFadeInMs)
	setMs(&cfg.Bell.DefaultDuration, ec.BellDefaultDurMs)
	setMs(&cfg.Scheduler.NativeBellDuration, ec.BellDefaultDurMs)
	setMs(&cfg.Scheduler.WatchdogInterval, ec.WatchdogIntMs)
	setMs(&cfg.Scheduler.StallThreshold, ec.StallThresholdMs)
	setMs(&cfg.Preview.FadeIn, ec.PreviewFadeInMs)
	return cfg
}
