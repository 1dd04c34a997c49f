// Package cache keeps local copies of gallery content so that it survives the
// transport dropping its own file references.
package cache

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"gallerybot/internal/ids"
)

// Downloader fetches content bytes by transport handle. ext is the file
// extension including the dot, or empty when unknown.
type Downloader interface {
	Download(ctx context.Context, handle string) (body io.ReadCloser, ext string, err error)
}

// objectName builds "<pairKey>_<unix>_<id><ext>".
func objectName(pairKey string, now time.Time, ext string) (string, error) {
	id, err := ids.New(ids.ObjectLen)
	if err != nil {
		return "", err
	}
	ext = strings.ToLower(path.Ext("x" + ext))
	return fmt.Sprintf("%s_%d_%s%s", pairKey, now.Unix(), id, ext), nil
}
