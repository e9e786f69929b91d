package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cfsck/internal/models"
)

// DatabaseLookup resolves a database id to its registration.
type DatabaseLookup interface {
	GetDatabase(ctx context.Context, id int) (*models.Database, error)
}

// OpenFunc opens the database stored at path.
type OpenFunc func(path string) (ContextDB, error)

// Pool opens context databases lazily by database id and keeps them open
// until Close. A context is routed to the database it is assigned to.
type Pool struct {
	lookup DatabaseLookup
	open   OpenFunc
	logger *slog.Logger

	mu  sync.Mutex
	dbs map[int]ContextDB
}

// NewPool builds a pool. A nil open func opens SQLite files with Open.
func NewPool(lookup DatabaseLookup, open OpenFunc, logger *slog.Logger) *Pool {
	if open == nil {
		open = func(path string) (ContextDB, error) { return Open(path) }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		lookup: lookup,
		open:   open,
		logger: logger,
		dbs:    map[int]ContextDB{},
	}
}

// ForContext returns the database the context is assigned to.
func (p *Pool) ForContext(ctx context.Context, tenant models.Context) (ContextDB, error) {
	return p.ForDatabase(ctx, tenant.DatabaseID)
}

// ForDatabase returns the open handle for databaseID, opening it on first use.
func (p *Pool) ForDatabase(ctx context.Context, databaseID int) (ContextDB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.dbs[databaseID]; ok {
		return db, nil
	}

	database, err := p.lookup.GetDatabase(ctx, databaseID)
	if err != nil {
		return nil, fmt.Errorf("resolve database %d: %w", databaseID, err)
	}
	db, err := p.open(database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %d: %w", databaseID, err)
	}
	p.logger.Debug("context database opened", "database_id", databaseID, "path", database.Path)
	p.dbs[databaseID] = db
	return db, nil
}

// Close closes every database opened by the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for id, db := range p.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close database %d: %w", id, err)
		}
		delete(p.dbs, id)
	}
	return firstErr
}

// Documents returns the infoitem view of the pool.
func (p *Pool) Documents() *Documents {
	return &Documents{pool: p}
}

// Attachments returns the attachment view of the pool.
func (p *Pool) Attachments() *Attachments {
	return &Attachments{pool: p}
}

// Documents routes infoitem operations to each context's database.
type Documents struct {
	pool *Pool
}

func (d *Documents) ListBlobIDs(ctx context.Context, tenant models.Context) ([]string, error) {
	db, err := d.pool.ForContext(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return db.ListInfoitemBlobIDs(ctx, tenant.ID)
}

func (d *Documents) RepointBlob(ctx context.Context, tenant models.Context, oldID, newID string, info models.BlobInfo, comment string) error {
	db, err := d.pool.ForContext(ctx, tenant)
	if err != nil {
		return err
	}
	_, err = db.RepointInfoitemBlob(ctx, tenant.ID, oldID, newID, info, comment)
	return err
}

func (d *Documents) DeleteByBlob(ctx context.Context, tenant models.Context, blobID string) error {
	db, err := d.pool.ForContext(ctx, tenant)
	if err != nil {
		return err
	}
	_, err = db.DeleteInfoitemVersionsByBlob(ctx, tenant.ID, blobID)
	return err
}

// CreateInfoitem stores item in the context's database. The item's context
// id is forced to the tenant's.
func (d *Documents) CreateInfoitem(ctx context.Context, tenant models.Context, item *models.Infoitem) error {
	db, err := d.pool.ForContext(ctx, tenant)
	if err != nil {
		return err
	}
	item.ContextID = tenant.ID
	return db.CreateInfoitem(ctx, item)
}

func (d *Documents) ContextAdmin(ctx context.Context, tenant models.Context) (*models.User, error) {
	db, err := d.pool.ForContext(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return db.GetContextAdmin(ctx, tenant.ID)
}

// Attachments routes attachment operations to each context's database.
type Attachments struct {
	pool *Pool
}

func (a *Attachments) ListBlobIDs(ctx context.Context, tenant models.Context) ([]string, error) {
	db, err := a.pool.ForContext(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return db.ListAttachmentBlobIDs(ctx, tenant.ID)
}

func (a *Attachments) RepointBlob(ctx context.Context, tenant models.Context, oldID, newID string, info models.BlobInfo, comment string) error {
	db, err := a.pool.ForContext(ctx, tenant)
	if err != nil {
		return err
	}
	_, err = db.RepointAttachmentBlob(ctx, tenant.ID, oldID, newID, info, comment)
	return err
}

func (a *Attachments) DeleteByBlob(ctx context.Context, tenant models.Context, blobID string) error {
	db, err := a.pool.ForContext(ctx, tenant)
	if err != nil {
		return err
	}
	_, err = db.DeleteAttachmentsByBlob(ctx, tenant.ID, blobID)
	return err
}
