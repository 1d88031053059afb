package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/stillmind/stillmind/internal/source"
)

// Fetch downloads a remote asset into the cache directory so later
// sessions can play it without touching the network. Local and bundled
// assets, and remote assets already cached, are no-ops.
func (c *Catalog) Fetch(ctx context.Context, assetID string, kind source.Kind) error {
	c.mu.RLock()
	asset, ok := c.entries[kind][assetID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s (%s)", source.ErrNotFound, assetID, kind)
	}

	remote, isRemote := asset.Source.(source.RemoteStream)
	if !isRemote {
		return nil
	}
	dest := c.cachePath(assetID, remote.URL)
	if fileExists(dest) {
		return nil
	}

	c.log.Info("fetching asset", "id", assetID, "url", remote.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remote.URL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", assetID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: unexpected status %s", assetID, resp.Status)
	}

	// Download to a temp file first so a partial download never looks
	// like a cached asset.
	tmp, err := os.CreateTemp(c.cacheDir, assetID+".*.part")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("fetching %s: %w", assetID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	c.rescan()
	return nil
}
