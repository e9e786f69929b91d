package consistency

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cfsck/internal/blobstore"
	"cfsck/internal/models"
)

// StoreFactory returns the blob store of a context.
type StoreFactory interface {
	ForContext(ctx context.Context, tenant models.Context) (blobstore.Store, error)
}

// ReferenceIndex is a metadata table whose rows reference blobs by id.
type ReferenceIndex interface {
	ListBlobIDs(ctx context.Context, tenant models.Context) ([]string, error)
	// RepointBlob moves every reference to oldID onto newID in one transaction.
	RepointBlob(ctx context.Context, tenant models.Context, oldID, newID string, info models.BlobInfo, comment string) error
	// DeleteByBlob removes every reference to blobID in one transaction.
	DeleteByBlob(ctx context.Context, tenant models.Context, blobID string) error
}

// DocumentIndex is the infoitem table plus what restoring orphaned blobs needs.
type DocumentIndex interface {
	ReferenceIndex
	CreateInfoitem(ctx context.Context, tenant models.Context, item *models.Infoitem) error
	ContextAdmin(ctx context.Context, tenant models.Context) (*models.User, error)
}

// UsageRecorder persists the filestore usage recounted after a repair.
type UsageRecorder interface {
	SetContextUsage(ctx context.Context, contextID int, usedBytes int64) error
}

// Deps are the collaborators of the engine and the service. Usage is
// optional; without it recounted usage is only reported.
type Deps struct {
	Directory   Directory
	Stores      StoreFactory
	Documents   DocumentIndex
	Attachments ReferenceIndex
	Usage       UsageRecorder
}

func (d Deps) validate() error {
	var missing []string
	if d.Directory == nil {
		missing = append(missing, "directory")
	}
	if d.Stores == nil {
		missing = append(missing, "stores")
	}
	if d.Documents == nil {
		missing = append(missing, "documents")
	}
	if d.Attachments == nil {
		missing = append(missing, "attachments")
	}
	if len(missing) > 0 {
		return fmt.Errorf("consistency: missing dependencies: %s", strings.Join(missing, ", "))
	}
	return nil
}

// FailureMode decides what a mutating solver does after one id fails.
type FailureMode string

const (
	// FailureModeAbort stops the batch at the first failed id.
	FailureModeAbort FailureMode = "abort"
	// FailureModeContinue attempts every id and reports all failures.
	FailureModeContinue FailureMode = "continue"
)

// ParseFailureMode accepts "abort", "continue" or empty (abort).
func ParseFailureMode(raw string) (FailureMode, error) {
	switch FailureMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FailureModeAbort:
		return FailureModeAbort, nil
	case FailureModeContinue:
		return FailureModeContinue, nil
	default:
		return "", fmt.Errorf("invalid failure mode %q (want abort or continue)", raw)
	}
}

// Options tune the service.
type Options struct {
	FailureMode FailureMode
	Logger      *slog.Logger
	Observer    Observer
}

func (o Options) withDefaults() Options {
	if o.FailureMode == "" {
		o.FailureMode = FailureModeAbort
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

// Observer receives counts for metrics.
type Observer interface {
	ObserveDivergences(kind Kind, count int)
	ObserveRepair(kind Kind, action Action, err error)
	ObserveTenantFailure(stage string)
}

type nopObserver struct{}

func (nopObserver) ObserveDivergences(Kind, int)      {}
func (nopObserver) ObserveRepair(Kind, Action, error) {}
func (nopObserver) ObserveTenantFailure(string)       {}
