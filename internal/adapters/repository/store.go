// Package repository provides read access to stored model artifacts.
package repository

import (
	"context"
	"io"
)

// Store opens named artifacts for reading.
type Store interface {
	// Open returns a reader for the artifact. Returns ErrNotFound if the
	// artifact does not exist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Locate returns a human-readable location for name, used in status
	// reports and logs.
	Locate(name string) string
}
