package store

import (
	"context"
	"errors"

	"cfsck/internal/models"
)

// ErrNotFound reports that no row matched a lookup or mutation.
var ErrNotFound = errors.New("not found")

// InfoitemStore is the document metadata surface of a context database.
type InfoitemStore interface {
	CreateInfoitem(ctx context.Context, item *models.Infoitem) error
	GetInfoitem(ctx context.Context, contextID, id int) (*models.Infoitem, error)
	ListInfoitemBlobIDs(ctx context.Context, contextID int) ([]string, error)
	RepointInfoitemBlob(ctx context.Context, contextID int, oldID, newID string, info models.BlobInfo, comment string) (int64, error)
	DeleteInfoitemVersionsByBlob(ctx context.Context, contextID int, blobID string) (int64, error)
}

// AttachmentStore is the attachment metadata surface of a context database.
//
// Kept separate from InfoitemStore so callers that only touch one module
// can be tested against a narrow fake.
type AttachmentStore interface {
	CreateAttachment(ctx context.Context, attachment *models.Attachment) error
	GetAttachment(ctx context.Context, contextID, id int) (*models.Attachment, error)
	ListAttachmentBlobIDs(ctx context.Context, contextID int) ([]string, error)
	RepointAttachmentBlob(ctx context.Context, contextID int, oldID, newID string, info models.BlobInfo, comment string) (int64, error)
	DeleteAttachmentsByBlob(ctx context.Context, contextID int, blobID string) (int64, error)
}

// UserStore resolves context users.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetContextAdmin(ctx context.Context, contextID int) (*models.User, error)
}

// ContextDB is everything one context database offers.
type ContextDB interface {
	InfoitemStore
	AttachmentStore
	UserStore
	Close() error
}

var _ ContextDB = (*Store)(nil)
