package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// LogoAssetPrefix marks an internal logo asset reference in a channel's
// tvg_logo field, e.g. "@logo:01J3ZK5Y8QW2M4N6P8R0T2V4X6".
const LogoAssetPrefix = "@logo:"

// LogoCacher is the external logo cache contract consumed by the logo
// prefetch stage. Ensure is best-effort and never on the critical path.
type LogoCacher interface {
	// Ensure makes sure the asset is locally cached.
	Ensure(ctx context.Context, assetID string) error
}

// LogoCache stores logo assets on disk, sharded by the first two hex
// characters of the SHA-256 hash of the asset id.
type LogoCache struct {
	sandbox *Sandbox
}

// NewLogoCache creates a new LogoCache in the given base directory.
func NewLogoCache(baseDir string) (*LogoCache, error) {
	sandbox, err := NewSandbox(baseDir)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}

	if err := sandbox.MkdirAll("logos"); err != nil {
		return nil, fmt.Errorf("creating logos directory: %w", err)
	}

	return &LogoCache{sandbox: sandbox}, nil
}

// assetPath generates the relative file path for an asset id.
func (c *LogoCache) assetPath(assetID string) string {
	hash := sha256.Sum256([]byte(assetID))
	shard := hex.EncodeToString(hash[:1])
	return filepath.Join("logos", shard, assetID)
}

// Store writes logo bytes for an asset and returns the relative path and the
// content hash.
func (c *LogoCache) Store(assetID string, data []byte) (string, string, error) {
	path := c.assetPath(assetID)

	if err := c.sandbox.AtomicWrite(path, data); err != nil {
		return "", "", fmt.Errorf("writing logo file: %w", err)
	}

	sum := sha256.Sum256(data)
	return path, hex.EncodeToString(sum[:]), nil
}

// Has reports whether the asset is present in the cache.
func (c *LogoCache) Has(assetID string) bool {
	ok, err := c.sandbox.Exists(c.assetPath(assetID))
	return err == nil && ok
}

// Ensure makes sure the asset is locally cached. Missing assets are reported
// as errors; callers treat failures as non-fatal.
func (c *LogoCache) Ensure(ctx context.Context, assetID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if assetID == "" {
		return fmt.Errorf("logo cache: empty asset id")
	}
	if !c.Has(assetID) {
		return fmt.Errorf("logo cache: asset %s not cached", assetID)
	}
	return nil
}

// Delete removes an asset from the cache.
func (c *LogoCache) Delete(assetID string) error {
	return c.sandbox.Remove(c.assetPath(assetID))
}

// AssetIDFromLogoField extracts the internal asset id from a tvg_logo field
// value. Returns empty when the value is not an internal asset reference.
func AssetIDFromLogoField(value string) string {
	if strings.HasPrefix(value, LogoAssetPrefix) {
		return strings.TrimPrefix(value, LogoAssetPrefix)
	}
	return ""
}
