// Package content fetches the portal's JSON documents. A Source knows how to
// read raw bytes by key from one backend (the CDN over HTTP, or the S3
// bucket behind it); Client decodes those bytes into model types.
package content

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist upstream.
var ErrNotFound = errors.New("not found")

// Source reads a document by key. Keys are relative paths and may carry a
// query string ("publication/?language=en-GB").
type Source interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, key string) ([]byte, error)

func (f SourceFunc) Get(ctx context.Context, key string) ([]byte, error) { return f(ctx, key) }
