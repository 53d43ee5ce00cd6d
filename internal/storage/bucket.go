// Package storage puts uploaded files (product images, payment proofs) into a bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var ErrEmptyObject = errors.New("storage: empty object")

// Object describes a stored file.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

type Bucket interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

const (
	PrefixPaymentProofs = "payment-proofs"
	PrefixProductImages = "products"
)

// TimestampedName prefixes the base of original with the unix-millisecond time,
// e.g. "1700000000000-receipt.png".
func TimestampedName(now time.Time, original string) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), cleanName(original))
}

// ProofKey is the object key of a payment proof uploaded at now.
func ProofKey(now time.Time, original string) string {
	return path.Join(PrefixPaymentProofs, TimestampedName(now, original))
}

// ProductImageKey keeps the original extension: products/<id>-<unixms><ext>.
func ProductImageKey(productID int64, now time.Time, original string) string {
	ext := strings.ToLower(filepath.Ext(cleanName(original)))
	return path.Join(PrefixProductImages, fmt.Sprintf("%d-%d%s", productID, now.UnixMilli(), ext))
}

func cleanName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "uploaded_file"
	}
	return name
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
