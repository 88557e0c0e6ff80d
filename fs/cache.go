// Package fs provides file-based storage: the content cache, the local
// vector store, and the markdown export writer.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/memoracle/memoracle"
)

// Ensure ContentCache implements memoracle.ContentCache at compile time.
var _ memoracle.ContentCache = (*ContentCache)(nil)

// ContentCache stores fetched page bodies as JSON files under
// <baseDir>/<hostname>/<16-hex>.json, where the hex key is a prefix of
// the SHA-256 of the URL.
type ContentCache struct {
	baseDir string
}

// NewContentCache creates a cache rooted at baseDir.
func NewContentCache(baseDir string) *ContentCache {
	return &ContentCache{baseDir: baseDir}
}

// CacheKey returns the 16-hex-character SHA-256 prefix for a URL.
func CacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:16]
}

func (c *ContentCache) path(rawURL string) string {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = sanitizeName(u.Host)
	}
	return filepath.Join(c.baseDir, host, CacheKey(rawURL)+".json")
}

// Get retrieves the cached body for a URL.
func (c *ContentCache) Get(_ context.Context, rawURL string) (*memoracle.CachedPage, error) {
	data, err := os.ReadFile(c.path(rawURL))
	if os.IsNotExist(err) {
		return nil, memoracle.Errorf(memoracle.ENOTFOUND, "no cached body for %s", rawURL)
	}
	if err != nil {
		return nil, err
	}

	var page memoracle.CachedPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, memoracle.Errorf(memoracle.EINTERNAL, "corrupt cache entry for %s: %v", rawURL, err)
	}
	return &page, nil
}

// Put stores a body, overwriting any previous entry for the URL.
func (c *ContentCache) Put(_ context.Context, page *memoracle.CachedPage) error {
	if page.URL == "" {
		return memoracle.Errorf(memoracle.EINVALID, "cached page URL required")
	}

	path := c.path(page.URL)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// Has reports whether a body is cached for the URL.
func (c *ContentCache) Has(_ context.Context, rawURL string) bool {
	_, err := os.Stat(c.path(rawURL))
	return err == nil
}

// Delete removes the entry for a URL, if present.
func (c *ContentCache) Delete(_ context.Context, rawURL string) error {
	err := os.Remove(c.path(rawURL))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Clear removes all entries.
func (c *ContentCache) Clear(_ context.Context) error {
	entries, err := os.ReadDir(c.baseDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(c.baseDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// sanitizeName makes a string safe to use as a file or directory name.
func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// writeFileAtomic writes data to a temp file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
