package cache

import (
	"context"
	"fmt"
	"mime"
	"path"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// MinIOCache stores content as objects; refs are object names.
type MinIOCache struct {
	client     *minio.Client
	bucket     string
	downloader Downloader
	Now        func() time.Time
}

func NewMinIOCache(ctx context.Context, cfg MinIOConfig, d Downloader) (*MinIOCache, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: "us-east-1"}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinIOCache{client: client, bucket: cfg.Bucket, downloader: d}, nil
}

func (c *MinIOCache) Cache(ctx context.Context, pairKey, handle string) (string, error) {
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

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := c.client.PutObject(ctx, c.bucket, name, body, -1, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("put object %s: %w", name, err)
	}
	return name, nil
}

func (c *MinIOCache) Release(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	if err := c.client.RemoveObject(ctx, c.bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", ref, err)
	}
	return nil
}

func (c *MinIOCache) Ping(ctx context.Context) error {
	_, err := c.client.BucketExists(ctx, c.bucket)
	return err
}
