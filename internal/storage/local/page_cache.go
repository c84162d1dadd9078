package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/hash/sha256"
)

// PageCache stores one raw HTML file per URL, named by the URL's hash.
// A missing file is a cache miss.
type PageCache struct {
	dir    string
	hasher crawler.Hasher
}

// NewPageCache creates the cache directory if needed.
func NewPageCache(dir string, hasher crawler.Hasher) (*PageCache, error) {
	clean, err := ensureDir(dir)
	if err != nil {
		return nil, err
	}
	if hasher == nil {
		hasher = sha256.New()
	}
	return &PageCache{dir: clean, hasher: hasher}, nil
}

// Path returns the cache file used for url.
func (c *PageCache) Path(url string) (string, error) {
	key, err := c.hasher.Hash([]byte(url))
	if err != nil {
		return "", fmt.Errorf("hash url: %w", err)
	}
	return filepath.Join(c.dir, key+".html"), nil
}

// Get returns the cached HTML for url, if any.
func (c *PageCache) Get(_ context.Context, url string) (string, bool, error) {
	path, err := c.Path(url)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from a hash
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read cache file: %w", err)
	}
	return string(data), true, nil
}

// Put writes html for url.
func (c *PageCache) Put(_ context.Context, url, html string) error {
	path, err := c.Path(url)
	if err != nil {
		return err
	}
	return writeAtomic(path, []byte(html))
}
