package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFrom(t *testing.T, toml string) *Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644))
	t.Chdir(dir)

	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no config file anywhere nearby

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Notify.Enabled)
	assert.Empty(t, cfg.Assets)
	assert.False(t, cfg.Engine.DisableNativePath)
}

func TestLoad_ParsesAssetsAndEngine(t *testing.T) {
	cfg := loadFrom(t, `
default_bell = "bowl"
default_ambience = "rain"

[[assets]]
id = "rain"
kind = "ambience"
path = "/sounds/rain.mp3"

[[assets]]
id = "stream"
kind = "ambience"
url = "https://example.org/stream.mp3"

[[assets]]
id = "bowl"
kind = "bell"
bundled = "bells/bowl.ogg"

[engine]
fade_in_ms = 2000
watchdog_interval_ms = 4000
disable_native_path = true

[log]
level = "debug"
format = "json"

[notify]
enabled = false
`)

	assert.Equal(t, "bowl", cfg.DefaultBell)
	assert.Equal(t, "rain", cfg.DefaultAmbience)
	require.Len(t, cfg.Assets, 3)
	assert.Equal(t, AssetConfig{ID: "rain", Kind: "ambience", Path: "/sounds/rain.mp3"}, cfg.Assets[0])
	assert.Equal(t, "https://example.org/stream.mp3", cfg.Assets[1].URL)
	assert.Equal(t, "bells/bowl.ogg", cfg.Assets[2].Bundled)

	assert.Equal(t, 2000, cfg.Engine.FadeInMs)
	assert.Equal(t, 4000, cfg.Engine.WatchdogIntMs)
	assert.True(t, cfg.Engine.DisableNativePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Notify.Enabled)
}

func TestLoad_ExpandsHomePaths(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := loadFrom(t, `
cache_dir = "~/sounds/cache"

[[assets]]
id = "rain"
kind = "ambience"
path = "~/sounds/rain.mp3"
`)

	assert.Equal(t, filepath.Join(home, "sounds/cache"), cfg.CacheDir)
	assert.Equal(t, filepath.Join(home, "sounds/rain.mp3"), cfg.Assets[0].Path)
}

func TestResolveCacheDir(t *testing.T) {
	cfg := &Config{CacheDir: "/explicit/cache"}
	assert.Equal(t, "/explicit/cache", cfg.ResolveCacheDir())

	cfg = &Config{}
	got := cfg.ResolveCacheDir()
	assert.NotEmpty(t, got)
	assert.Contains(t, got, "stillmind")
}
