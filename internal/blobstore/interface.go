package blobstore

import (
	"context"
	"errors"
	"io"
	"strconv"
)

// ErrNotFound reports an unknown blob id.
var ErrNotFound = errors.New("blob not found")

// ErrLocked reports that another process holds the store's state lock.
var ErrLocked = errors.New("blob store state is locked")

// Store is one context's view of its filestore. Blob ids are opaque to
// callers and unique within the context.
type Store interface {
	List(ctx context.Context) ([]string, error)
	Save(ctx context.Context, r io.Reader) (string, error)
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
	// Rebuild recreates the store's index from the stored objects.
	Rebuild(ctx context.Context) error
	Size(ctx context.Context, id string) (int64, error)
	// MediaType is the detected type including parameters, for example
	// "text/plain; charset=utf-8".
	MediaType(ctx context.Context, id string) (string, error)
	// RecalculateUsage recounts the bytes used by the context and returns them.
	RecalculateUsage(ctx context.Context) (int64, error)
}

// contextStoreDir is the per-context directory (or key prefix) inside a filestore.
func contextStoreDir(contextID int) string {
	return strconv.Itoa(contextID) + "_ctx_store"
}
