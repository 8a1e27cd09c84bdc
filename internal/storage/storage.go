package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when nothing is stored at the given URL.
var ErrNotFound = errors.New("not found")

type Storage interface {
	// Put stores data with the given key and returns the storage URL
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get retrieves data from the given storage URL
	Get(ctx context.Context, url string) ([]byte, error)
	// URL returns the storage URL that Put would return for key
	URL(key string) string
}
