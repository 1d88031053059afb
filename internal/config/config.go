// Package config loads the application configuration from TOML files.
package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const appName = "stillmind"

type Config struct {
	// Assets registers the named sounds available for sessions and
	// previews.
	Assets []AssetConfig `koanf:"assets"`

	// DefaultBell is the bell asset used when a session does not name
	// one.
	DefaultBell string `koanf:"default_bell"`
	// DefaultAmbience is the ambience asset preselected for new
	// sessions; empty means silent sessions by default.
	DefaultAmbience string `koanf:"default_ambience"`

	// CacheDir overrides where remote assets are cached. Empty uses
	// the XDG cache directory.
	CacheDir string `koanf:"cache_dir"`

	Engine EngineConfig `koanf:"engine"`
	Log    LogConfig    `koanf:"log"`
	Notify NotifyConfig `koanf:"notify"`
}

// AssetConfig names one sound. Exactly one of Path, URL or Bundled
// should be set.
type AssetConfig struct {
	ID      string `koanf:"id"`
	Kind    string `koanf:"kind"` // "ambience" or "bell"
	Path    string `koanf:"path"`
	URL     string `koanf:"url"`
	Bundled string `koanf:"bundled"`
}

// EngineConfig tunes the audio/timer engine. All durations are in
// milliseconds.
type EngineConfig struct {
	FadeInMs          int `koanf:"fade_in_ms"`
	PreloadWindowMs   int `koanf:"preload_window_ms"`
	OverlapWindowMs   int `koanf:"overlap_window_ms"`
	BellFadeInMs      int `koanf:"bell_fade_in_ms"`
	BellDefaultDurMs  int `koanf:"bell_default_duration_ms"`
	WatchdogIntMs     int `koanf:"watchdog_interval_ms"`
	StallThresholdMs  int `koanf:"stall_threshold_ms"`
	PreviewFadeInMs   int `koanf:"preview_fade_in_ms"`
	DisableNativePath bool `koanf:"disable_native_path"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `koanf:"level"`  // "debug", "info", "warn", "error"
	Format string `koanf:"format"` // "text" or "json"
}

// NotifyConfig controls desktop notifications.
type NotifyConfig struct {
	Enabled bool `koanf:"enabled"`
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{
		Log:    LogConfig{Level: "info", Format: "text"},
		Notify: NotifyConfig{Enabled: true},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.CacheDir = expandPath(cfg.CacheDir)
	for i, a := range cfg.Assets {
		cfg.Assets[i].Path = expandPath(a.Path)
	}

	return cfg, nil
}

// ResolveCacheDir returns the effective asset cache directory.
func (c *Config) ResolveCacheDir() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	return filepath.Join(xdg.CacheHome, appName, "assets")
}

func getConfigPaths() []string {
	paths := []string{
		filepath.Join(xdg.ConfigHome, appName, "config.toml"),
	}

	// ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
