package file

import "context"

// Storage persists opaque blobs under slash-separated keys.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Read returns the blob stored under key or ErrFileNotFound.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write replaces the blob stored under key.
	Write(ctx context.Context, key string, data []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
}
