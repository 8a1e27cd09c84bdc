package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"snapshot-render/internal/bitmap"
	"snapshot-render/internal/codec"
)

const (
	SnapshotsDirectory = "__Snapshots__"
	FailuresDirectory  = "__Failures__"
)

// Key identifies one reference image: the test it belongs to, the variant
// name within that test, and a platform qualifier.
type Key struct {
	Test     string
	Name     string
	Platform string
}

func (k Key) Path(extension string) string {
	return k.path(SnapshotsDirectory, extension)
}

func (k Key) FailurePath(attachment string, extension string) string {
	return k.path(FailuresDirectory, attachment+"."+extension)
}

func (k Key) path(root string, suffix string) string {
	name := sanitize(k.Name)
	if name == "" {
		name = "1"
	}
	if k.Platform != "" {
		name += "." + sanitize(k.Platform)
	}
	return path.Join(root, sanitize(k.Test), name+"."+suffix)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}

// ReferenceStore loads and saves reference bitmaps through a blob Storage.
type ReferenceStore struct {
	Storage Storage
	Codec   codec.Codec
	// Scale is attached to decoded references, since the encoded form
	// carries pixels only.
	Scale float64
}

func NewReferenceStore(s Storage, c codec.Codec, scale float64) *ReferenceStore {
	if c == nil {
		c = codec.PNG
	}
	return &ReferenceStore{
		Storage: s,
		Codec:   c,
		Scale:   scale,
	}
}

func (r *ReferenceStore) URL(key Key) string {
	return r.Storage.URL(key.Path(r.Codec.Extension()))
}

// Load returns the stored reference, or an error wrapping ErrNotFound when
// none was recorded yet.
func (r *ReferenceStore) Load(ctx context.Context, key Key) (*bitmap.Bitmap, error) {
	data, err := r.Storage.Get(ctx, r.URL(key))
	if err != nil {
		return nil, err
	}

	b, err := r.Codec.Decode(data, r.Scale)
	if err != nil {
		return nil, fmt.Errorf("failed to decode reference %s: %w", r.URL(key), err)
	}
	return b, nil
}

func (r *ReferenceStore) Save(ctx context.Context, key Key, b *bitmap.Bitmap) (string, error) {
	data, err := r.Codec.Encode(b)
	if err != nil {
		return "", fmt.Errorf("failed to encode reference: %w", err)
	}
	return r.Storage.Put(ctx, key.Path(r.Codec.Extension()), data)
}
