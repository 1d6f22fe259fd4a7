package storage

import (
	"context"
	"io"
	"time"
)

// FileInfo carries the metadata the upload core needs from a stat call
type FileInfo struct {
	Size    int64
	ModTime time.Time
}

// Store abstracts the filesystem operations the upload core performs, so tests
// can run against a temp directory and fault-injecting fakes.
type Store interface {
	// Append writes content to the end of the file at path, creating it if
	// absent, and returns the number of bytes written. Data is flushed to
	// disk before Append returns.
	Append(ctx context.Context, path string, content io.Reader) (int64, error)

	// Truncate cuts the file at path back to size bytes.
	Truncate(ctx context.Context, path string, size int64) error

	// WriteExclusive creates the file at path with the given contents using
	// create-only semantics. An already-existing file is not an error and is
	// left untouched.
	WriteExclusive(ctx context.Context, path string, data []byte) error

	// ReadFile returns the full contents of the file at path.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// Rename atomically moves a file within the store.
	Rename(ctx context.Context, from, to string) error

	// Delete removes the file at path. Deleting an absent file is not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether a file exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Stat returns size and modification time of the file at path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the paths of all files under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
