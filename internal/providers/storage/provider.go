package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound   = errors.New("storage: object not found")
	ErrInvalidRef = errors.New("storage: invalid ref")
)

// Provider keeps meter photos addressable by an opaque ref.
type Provider interface {
	Put(ctx context.Context, data []byte, mimeType string) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, ref string) error
	URL(ref string) string
}
