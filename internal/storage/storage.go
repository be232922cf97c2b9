// Package storage provides the narrow object-storage surface the pipeline
// needs: write a blob, get back a URL a client can fetch. Backends cover
// local disk for development and any S3-compatible store (R2, MinIO) for
// deployment.
package storage

import "context"

// Uploader stores a blob under key and returns its public URL.
// Implementations must be safe for concurrent use.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}
