package storage

import (
	"context"
	"fmt"
)

// New creates the storage selected by backend, "file" or "s3".
func New(ctx context.Context, backend string, f FileConfig, s S3Config) (Storage, error) {
	switch backend {
	case "", "file":
		return NewFileStorage(ctx, f)
	case "s3":
		return NewS3Storage(ctx, s)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}
