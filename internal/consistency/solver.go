package consistency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"cfsck/internal/blobstore"
	"cfsck/internal/models"
)

const (
	// placeholderContent is the body of blobs created for missing files.
	placeholderContent = "This file was lost from the filestore and has been replaced by a placeholder.\n"
	// restoredComment is appended to the comment of repointed rows.
	restoredComment = "\nThis file needed to be restored due to a consistency check. The file has changed."

	restoredTitle       = "Restored file"
	restoredDescription = "This file was restored by a consistency check because no metadata referenced it."
	restoredFilePrefix  = "restored-"
)

// Tenant is a context together with its opened blob store.
type Tenant struct {
	models.Context
	Store blobstore.Store
}

// Solver handles the ids of one divergence kind for one tenant. ids are
// sorted and non-empty.
type Solver interface {
	Solve(ctx context.Context, tenant Tenant, ids []string) error
}

// Solvers holds one solver per divergence kind.
type Solvers struct {
	Documents   Solver
	Attachments Solver
	Blobs       Solver
}

func (s Solvers) forKind(kind Kind) Solver {
	var solver Solver
	switch kind {
	case KindOrphanedDocumentReference:
		solver = s.Documents
	case KindOrphanedAttachmentReference:
		solver = s.Attachments
	case KindOrphanedBlob:
		solver = s.Blobs
	}
	if solver == nil {
		return NoopSolver{}
	}
	return solver
}

// NoopSolver ignores every id.
type NoopSolver struct{}

func (NoopSolver) Solve(context.Context, Tenant, []string) error { return nil }

// Recorder collects ids per context. One recorder may serve several kinds;
// Results merges them.
type Recorder struct {
	mu      sync.Mutex
	results map[int][]string
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{results: map[int][]string{}}
}

func (r *Recorder) Solve(_ context.Context, tenant Tenant, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[tenant.ID] = append(r.results[tenant.ID], ids...)
	return nil
}

// Results returns a sorted, de-duplicated id list per context. Contexts
// without ids are absent.
func (r *Recorder) Results() map[int][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[int][]string, len(r.results))
	for id, ids := range r.results {
		if len(ids) == 0 {
			continue
		}
		out[id] = newBlobSet(ids).sorted()
	}
	return out
}

// batch runs fn for each id, honoring the failure mode. In abort mode the
// first error ends the batch; in continue mode all errors are joined.
type batch struct {
	kind    Kind
	action  Action
	mode    FailureMode
	logger  *slog.Logger
	observe Observer
}

func (b batch) run(ctx context.Context, tenant Tenant, ids []string, fn func(id string) error) error {
	var errs []error
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(id)
		b.observe.ObserveRepair(b.kind, b.action, err)
		if err == nil {
			b.logger.Info("divergence repaired", "context_id", tenant.ID, "kind", b.kind, "action", b.action, "blob_id", id)
			continue
		}
		b.logger.Error("repair failed", "context_id", tenant.ID, "kind", b.kind, "action", b.action, "blob_id", id, "error", err)
		if b.mode != FailureModeContinue {
			return fmt.Errorf("%s %s for %s (%d remaining ids skipped): %w", b.kind, b.action, id, len(ids)-i-1, err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", id, err))
	}
	return errors.Join(errs...)
}

// createDummySolver restores missing files of a reference index with a
// placeholder blob and points the references at it.
type createDummySolver struct {
	index ReferenceIndex
	batch batch
}

func (s *createDummySolver) Solve(ctx context.Context, tenant Tenant, ids []string) error {
	return s.batch.run(ctx, tenant, ids, func(id string) error {
		newID, err := tenant.Store.Save(ctx, strings.NewReader(placeholderContent))
		if err != nil {
			return fmt.Errorf("save placeholder: %w", err)
		}

		err = s.repoint(ctx, tenant, id, newID)
		if err != nil {
			if delErr := tenant.Store.Delete(ctx, newID); delErr != nil {
				s.batch.logger.Warn("placeholder cleanup failed", "context_id", tenant.ID, "blob_id", newID, "error", delErr)
			}
			return err
		}
		return nil
	})
}

func (s *createDummySolver) repoint(ctx context.Context, tenant Tenant, oldID, newID string) error {
	info, err := blobInfo(ctx, tenant.Store, newID)
	if err != nil {
		return err
	}
	return s.index.RepointBlob(ctx, tenant.Context, oldID, newID, info, restoredComment)
}

// deleteReferenceSolver drops the rows referencing missing files.
type deleteReferenceSolver struct {
	index ReferenceIndex
	batch batch
}

func (s *deleteReferenceSolver) Solve(ctx context.Context, tenant Tenant, ids []string) error {
	return s.batch.run(ctx, tenant, ids, func(id string) error {
		return s.index.DeleteByBlob(ctx, tenant.Context, id)
	})
}

// createAdminInfoitemSolver adopts orphaned blobs as new infoitems owned
// by the context admin.
type createAdminInfoitemSolver struct {
	documents DocumentIndex
	batch     batch
}

func (s *createAdminInfoitemSolver) Solve(ctx context.Context, tenant Tenant, ids []string) error {
	admin, err := s.documents.ContextAdmin(ctx, tenant.Context)
	if err != nil {
		s.batch.logger.Error("context admin lookup failed", "context_id", tenant.ID, "error", err)
		for range ids {
			s.batch.observe.ObserveRepair(s.batch.kind, s.batch.action, err)
		}
		return fmt.Errorf("look up admin of context %d: %w", tenant.ID, err)
	}

	return s.batch.run(ctx, tenant, ids, func(id string) error {
		info, err := blobInfo(ctx, tenant.Store, id)
		if err != nil {
			return err
		}
		filename := restoredFilePrefix + path.Base(id)
		item := &models.Infoitem{
			ContextID:   tenant.ID,
			FolderID:    admin.InfostoreFolderID,
			Title:       restoredTitle,
			Description: restoredDescription,
			CreatedBy:   admin.ID,
			Versions: []models.InfoitemVersion{{
				Version:     1,
				BlobID:      id,
				Title:       restoredTitle,
				Description: restoredDescription,
				Filename:    filename,
				FileSize:    info.Size,
				MediaType:   info.MediaType,
				CreatedBy:   admin.ID,
			}},
		}
		return s.documents.CreateInfoitem(ctx, tenant.Context, item)
	})
}

// deleteBlobSolver removes orphaned blobs. Every id is attempted regardless
// of the failure mode and the store is rebuilt afterwards.
type deleteBlobSolver struct {
	batch batch
}

func (s *deleteBlobSolver) Solve(ctx context.Context, tenant Tenant, ids []string) error {
	continueAll := s.batch
	continueAll.mode = FailureModeContinue
	err := continueAll.run(ctx, tenant, ids, func(id string) error {
		return tenant.Store.Delete(ctx, id)
	})

	if rebuildErr := tenant.Store.Rebuild(ctx); rebuildErr != nil {
		s.batch.logger.Error("blob store rebuild failed", "context_id", tenant.ID, "error", rebuildErr)
		err = errors.Join(err, fmt.Errorf("rebuild: %w", rebuildErr))
	}
	return err
}

func blobInfo(ctx context.Context, store blobstore.Store, id string) (models.BlobInfo, error) {
	size, err := store.Size(ctx, id)
	if err != nil {
		return models.BlobInfo{}, fmt.Errorf("size of %s: %w", id, err)
	}
	mediaType, err := store.MediaType(ctx, id)
	if err != nil {
		return models.BlobInfo{}, fmt.Errorf("media type of %s: %w", id, err)
	}
	return models.BlobInfo{Size: size, MediaType: mediaType}, nil
}

// Build turns a policy into solvers bound to deps.
func (p Policy) Build(deps Deps, opts Options) Solvers {
	opts = opts.withDefaults()
	newBatch := func(kind Kind) batch {
		return batch{kind: kind, action: p.Action(kind), mode: opts.FailureMode, logger: opts.Logger, observe: opts.Observer}
	}

	var solvers Solvers
	switch p.Action(KindOrphanedDocumentReference) {
	case ActionCreateDummy:
		solvers.Documents = &createDummySolver{index: deps.Documents, batch: newBatch(KindOrphanedDocumentReference)}
	case ActionDelete:
		solvers.Documents = &deleteReferenceSolver{index: deps.Documents, batch: newBatch(KindOrphanedDocumentReference)}
	}
	switch p.Action(KindOrphanedAttachmentReference) {
	case ActionCreateDummy:
		solvers.Attachments = &createDummySolver{index: deps.Attachments, batch: newBatch(KindOrphanedAttachmentReference)}
	case ActionDelete:
		solvers.Attachments = &deleteReferenceSolver{index: deps.Attachments, batch: newBatch(KindOrphanedAttachmentReference)}
	}
	switch p.Action(KindOrphanedBlob) {
	case ActionCreateAdminInfoitem:
		solvers.Blobs = &createAdminInfoitemSolver{documents: deps.Documents, batch: newBatch(KindOrphanedBlob)}
	case ActionDelete:
		solvers.Blobs = &deleteBlobSolver{batch: newBatch(KindOrphanedBlob)}
	}
	return solvers
}
