package consistency

import (
	"context"
	"fmt"
	"log/slog"

	"cfsck/internal/models"
)

// Divergence is the outcome of checking one tenant. Every list is sorted.
type Divergence struct {
	MissingDocuments   []string
	MissingAttachments []string
	OrphanedBlobs      []string
}

// Empty reports whether the three sources agree.
func (d Divergence) Empty() bool {
	return len(d.MissingDocuments) == 0 && len(d.MissingAttachments) == 0 && len(d.OrphanedBlobs) == 0
}

// SourceError reports that one of the three sources of a tenant could not
// be read. The tenant was left untouched.
type SourceError struct {
	ContextID int
	Source    string
	Err       error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("context %d: read %s: %v", e.ContextID, e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Engine computes the divergences of one tenant and hands them to solvers.
type Engine struct {
	deps     Deps
	logger   *slog.Logger
	observer Observer
}

// NewEngine builds an engine over deps.
func NewEngine(deps Deps, opts Options) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return &Engine{deps: deps, logger: opts.Logger, observer: opts.Observer}, nil
}

// Check reads the blob store listing, the infoitem references and the
// attachment references of tenant, computes the three divergence sets and
// invokes the matching solver for each non-empty one. All three sets are
// computed before any solver runs. Solver errors are logged and do not stop
// the remaining kinds; only source read failures are returned.
func (e *Engine) Check(ctx context.Context, tenant models.Context, solvers Solvers) (Divergence, error) {
	logger := e.logger.With("context_id", tenant.ID, "filestore_id", tenant.FilestoreID, "database_id", tenant.DatabaseID)

	store, err := e.deps.Stores.ForContext(ctx, tenant)
	if err != nil {
		return Divergence{}, &SourceError{ContextID: tenant.ID, Source: "filestore", Err: err}
	}
	if err := store.Rebuild(ctx); err != nil {
		return Divergence{}, &SourceError{ContextID: tenant.ID, Source: "filestore", Err: err}
	}
	listed, err := store.List(ctx)
	if err != nil {
		return Divergence{}, &SourceError{ContextID: tenant.ID, Source: "filestore", Err: err}
	}
	docIDs, err := e.deps.Documents.ListBlobIDs(ctx, tenant)
	if err != nil {
		return Divergence{}, &SourceError{ContextID: tenant.ID, Source: "infoitems", Err: err}
	}
	attachmentIDs, err := e.deps.Attachments.ListBlobIDs(ctx, tenant)
	if err != nil {
		return Divergence{}, &SourceError{ContextID: tenant.ID, Source: "attachments", Err: err}
	}

	filestoreSet := newBlobSet(listed)
	docSet := newBlobSet(docIDs)
	attachmentSet := newBlobSet(attachmentIDs)
	joined := docSet.union(attachmentSet)

	div := Divergence{
		MissingDocuments:   docSet.minus(filestoreSet).sorted(),
		MissingAttachments: attachmentSet.minus(filestoreSet).sorted(),
		OrphanedBlobs:      filestoreSet.minus(joined).sorted(),
	}
	logger.Debug("context checked",
		"blobs", len(filestoreSet),
		"infoitem_refs", len(docSet),
		"attachment_refs", len(attachmentSet),
		"missing_infoitem_files", len(div.MissingDocuments),
		"missing_attachment_files", len(div.MissingAttachments),
		"orphaned_blobs", len(div.OrphanedBlobs),
	)

	t := Tenant{Context: tenant, Store: store}
	for _, step := range []struct {
		kind Kind
		ids  []string
	}{
		{KindOrphanedDocumentReference, div.MissingDocuments},
		{KindOrphanedAttachmentReference, div.MissingAttachments},
		{KindOrphanedBlob, div.OrphanedBlobs},
	} {
		if len(step.ids) == 0 {
			continue
		}
		e.observer.ObserveDivergences(step.kind, len(step.ids))
		if err := solvers.forKind(step.kind).Solve(ctx, t, step.ids); err != nil {
			logger.Warn("solver finished with errors", "kind", step.kind, "error", err)
		}
	}
	return div, nil
}
