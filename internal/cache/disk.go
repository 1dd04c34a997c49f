package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type DiskCache struct {
	dir        string
	downloader Downloader
	Now        func() time.Time
}

func NewDiskCache(dir string, d Downloader) *DiskCache {
	return &DiskCache{dir: dir, downloader: d}
}

func (c *DiskCache) Cache(ctx context.Context, pairKey, handle string) (string, error) {
	body, ext, err := c.downloader.Download(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("download content: %w", err)
	}
	defer body.Close()

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	name, err := objectName(pairKey, now(), ext)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	full := filepath.Join(c.dir, name)
	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("create cache file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("write cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("close cache file: %w", err)
	}
	return full, nil
}

// Release removes a cached file. Paths outside the cache dir are refused and
// an already missing file is not an error.
func (c *DiskCache) Release(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	rel, err := filepath.Rel(c.dir, ref)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("release %s: outside cache dir", ref)
	}
	if err := os.Remove(ref); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release %s: %w", ref, err)
	}
	return nil
}
