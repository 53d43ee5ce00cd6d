package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/storefront-pos/internal/config"
)

// Open builds the bucket selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Bucket, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.LocalDir, cfg.PublicURL)
	case "s3":
		return NewS3(ctx, S3Options{
			Bucket:    cfg.Bucket,
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			PublicURL: s3PublicURL(cfg.PublicURL),
		})
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

// s3PublicURL keeps an absolute CDN base and drops the local-driver path default.
func s3PublicURL(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return ""
}
