// Package objstore lists and downloads the raw dataset files (product
// catalog and transaction log) from an S3-compatible bucket.
package objstore

import (
	"context"
	"path"
	"strings"
)

// Object is one listed key.
type Object struct {
	Key  string
	Size int64
}

// Store is the object-store capability the ingest pipeline consumes.
type Store interface {
	// List returns objects under prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Download writes key to dest and returns the byte count. dest is never
	// left partially written.
	Download(ctx context.Context, key, dest string) (int64, error)
}

// hasExt reports whether key ends in one of exts (case-insensitive).
func hasExt(key string, exts ...string) bool {
	lower := strings.ToLower(key)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// localName maps a key to a flat file name inside the download dir.
func localName(key string) string {
	return path.Base(key)
}
