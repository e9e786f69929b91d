package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"cfsck/internal/models"
)

// FilestoreLookup resolves a filestore id to its registration.
type FilestoreLookup interface {
	GetFilestore(ctx context.Context, id int) (*models.Filestore, error)
}

// S3ClientFunc returns the S3 client used for s3:// filestores. It is called
// at most once per factory.
type S3ClientFunc func(ctx context.Context) (S3API, error)

// Factory hands out one Store per context, resolving the context's
// filestore URI. Handles are cached so concurrent users of one context share
// the same in-process lock.
type Factory struct {
	lookup   FilestoreLookup
	s3Client S3ClientFunc
	logger   *slog.Logger

	mu     sync.Mutex
	s3     S3API
	stores map[int]Store
}

// NewFactory builds a factory. s3Client may be nil when no s3:// filestore
// is registered.
func NewFactory(lookup FilestoreLookup, s3Client S3ClientFunc, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		lookup:   lookup,
		s3Client: s3Client,
		logger:   logger,
		stores:   map[int]Store{},
	}
}

// ForContext returns the blob store of the context.
func (f *Factory) ForContext(ctx context.Context, tenant models.Context) (Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if st, ok := f.stores[tenant.ID]; ok {
		return st, nil
	}

	fs, err := f.lookup.GetFilestore(ctx, tenant.FilestoreID)
	if err != nil {
		return nil, fmt.Errorf("resolve filestore %d: %w", tenant.FilestoreID, err)
	}
	st, err := f.open(ctx, fs, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("open filestore %d for context %d: %w", fs.ID, tenant.ID, err)
	}
	f.stores[tenant.ID] = st
	return st, nil
}

func (f *Factory) open(ctx context.Context, fs *models.Filestore, contextID int) (Store, error) {
	u, scheme, err := models.ParseFilestoreURI(fs.URI)
	if err != nil {
		return nil, err
	}
	logger := f.logger.With("filestore_id", fs.ID)

	switch scheme {
	case models.FilestoreSchemeFile:
		return NewLocalStore(u.Path, contextID, logger)
	case models.FilestoreSchemeS3:
		if f.s3 == nil {
			if f.s3Client == nil {
				return nil, fmt.Errorf("s3 filestores are not configured")
			}
			client, err := f.s3Client(ctx)
			if err != nil {
				return nil, err
			}
			f.s3 = client
		}
		return NewS3Store(f.s3, u.Host, strings.TrimPrefix(u.Path, "/"), contextID, logger)
	default:
		return nil, fmt.Errorf("unsupported filestore scheme %q", scheme)
	}
}
