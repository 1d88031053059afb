// Package assets maintains the catalog of named sounds available to
// sessions and previews, backed by configured files, bundled keys and
// remote URLs with a local cache.
package assets

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dhowden/tag"
	"github.com/fsnotify/fsnotify"

	"github.com/stillmind/stillmind/internal/config"
	"github.com/stillmind/stillmind/internal/source"
)

// Asset is one catalog entry.
type Asset struct {
	ID     string
	Kind   source.Kind
	Title  string
	Source source.Source
	// Cached is true for remote assets with a local copy.
	Cached bool
}

// Catalog resolves asset ids to playable sources. It implements
// source.Resolver.
type Catalog struct {
	mu       sync.RWMutex
	log      *slog.Logger
	cacheDir string
	entries  map[source.Kind]map[string]Asset
	watcher  *fsnotify.Watcher
}

var _ source.Resolver = (*Catalog)(nil)

// NewCatalog builds a catalog from configuration. cacheDir holds
// local copies of remote assets and is created if missing.
func NewCatalog(cfgs []config.AssetConfig, cacheDir string, log *slog.Logger) (*Catalog, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, err
	}

	c := &Catalog{
		log:      log.With("component", "assets"),
		cacheDir: cacheDir,
		entries:  map[source.Kind]map[string]Asset{},
	}
	for _, cfg := range cfgs {
		kind, err := parseKind(cfg.Kind)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", cfg.ID, err)
		}
		asset, err := buildAsset(cfg, kind)
		if err != nil {
			return nil, err
		}
		c.put(asset)
	}
	c.rescan()
	return c, nil
}

// Resolve implements source.Resolver. Remote assets resolve to their
// cached copy when one exists.
func (c *Catalog) Resolve(assetID string, kind source.Kind) (source.Source, error) {
	c.mu.RLock()
	asset, ok := c.entries[kind][assetID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", source.ErrNotFound, assetID, kind)
	}
	if remote, isRemote := asset.Source.(source.RemoteStream); isRemote {
		if cached := c.cachePath(assetID, remote.URL); fileExists(cached) {
			return source.LocalFile{Path: cached}, nil
		}
	}
	return asset.Source, nil
}

// List returns the catalog entries of one kind, sorted by id.
func (c *Catalog) List(kind source.Kind) []Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Asset, 0, len(c.entries[kind]))
	for _, a := range c.entries[kind] {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Asset) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Watch re-scans the cache directory whenever its contents change, so
// a download finishing elsewhere becomes visible without a restart.
func (c *Catalog) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(c.cacheDir); err != nil {
		watcher.Close()
		return err
	}

	c.mu.Lock()
	c.watcher = watcher
	c.mu.Unlock()

	go func() {
		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				c.rescan()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.log.Warn("cache watch error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the cache watcher.
func (c *Catalog) Close() error {
	c.mu.Lock()
	watcher := c.watcher
	c.watcher = nil
	c.mu.Unlock()
	if watcher != nil {
		return watcher.Close()
	}
	return nil
}

func (c *Catalog) put(a Asset) {
	m := c.entries[a.Kind]
	if m == nil {
		m = map[string]Asset{}
		c.entries[a.Kind] = m
	}
	m[a.ID] = a
}

// rescan refreshes the cached flags and titles.
func (c *Catalog) rescan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.entries {
		for id, a := range m {
			if remote, ok := a.Source.(source.RemoteStream); ok {
				a.Cached = fileExists(c.cachePath(id, remote.URL))
			}
			if local, ok := a.Source.(source.LocalFile); ok && a.Title == a.ID {
				if title := readTitle(local.Path); title != "" {
					a.Title = title
				}
			}
			m[id] = a
		}
	}
}

// cachePath is where a remote asset's local copy lives.
func (c *Catalog) cachePath(assetID, url string) string {
	return filepath.Join(c.cacheDir, assetID+path.Ext(url))
}

func buildAsset(cfg config.AssetConfig, kind source.Kind) (Asset, error) {
	a := Asset{ID: cfg.ID, Kind: kind, Title: cfg.ID}
	switch {
	case cfg.Path != "":
		a.Source = source.LocalFile{Path: cfg.Path}
	case cfg.URL != "":
		a.Source = source.RemoteStream{URL: cfg.URL}
	case cfg.Bundled != "":
		a.Source = source.Bundled{Key: cfg.Bundled}
	default:
		return Asset{}, fmt.Errorf("asset %s: no path, url or bundled key", cfg.ID)
	}
	return a, nil
}

func parseKind(s string) (source.Kind, error) {
	switch strings.ToLower(s) {
	case "ambience":
		return source.Ambience, nil
	case "bell":
		return source.Bell, nil
	default:
		return 0, fmt.Errorf("unknown asset kind %q", s)
	}
}

// readTitle pulls the title tag from a local audio file, returning ""
// when the file has no usable metadata.
func readTitle(filePath string) string {
	f, err := os.Open(filePath)
	if err != nil {
		return ""
	}
	defer f.Close()
	meta, err := tag.ReadFrom(f)
	if err != nil {
		return ""
	}
	return meta.Title()
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
