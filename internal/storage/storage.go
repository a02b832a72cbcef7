// Package storage opens dataset files by URI. Local paths and s3://bucket/key
// URIs are supported.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const s3Scheme = "s3://"

// Store opens readers and writers for a URI.
type Store interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
	Create(ctx context.Context, uri string) (io.WriteCloser, error)
}

// IsS3 reports whether uri names an S3 object or prefix.
func IsS3(uri string) bool {
	return strings.HasPrefix(uri, s3Scheme)
}

// ParseS3URI splits s3://bucket/key into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3(uri) {
		return "", "", fmt.Errorf("not an s3 uri: %s", uri)
	}
	rest := strings.TrimPrefix(uri, s3Scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 uri has no bucket: %s", uri)
	}
	return bucket, key, nil
}

// Join appends a file name to a directory path or S3 prefix.
func Join(dir, name string) string {
	if IsS3(dir) {
		return strings.TrimRight(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}

// Router dispatches to the local or S3 store by scheme.
type Router struct {
	Local Store
	S3    Store // nil disables s3:// URIs
}

// NewRouter returns a router over the local filesystem and an optional S3 store.
func NewRouter(s3 Store) *Router {
	return &Router{Local: NewLocal(), S3: s3}
}

func (r *Router) pick(uri string) (Store, error) {
	if IsS3(uri) {
		if r.S3 == nil {
			return nil, fmt.Errorf("s3 storage not configured for %s", uri)
		}
		return r.S3, nil
	}
	return r.Local, nil
}

// Open opens uri for reading.
func (r *Router) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	s, err := r.pick(uri)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, uri)
}

// Create opens uri for writing. The object is complete once Close returns nil.
func (r *Router) Create(ctx context.Context, uri string) (io.WriteCloser, error) {
	s, err := r.pick(uri)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, uri)
}
