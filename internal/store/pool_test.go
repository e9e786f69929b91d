package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfsck/internal/models"
)

type mapLookup map[int]string

func (m mapLookup) GetDatabase(_ context.Context, id int) (*models.Database, error) {
	path, ok := m[id]
	if !ok {
		return nil, errors.New("unknown database")
	}
	return &models.Database{ID: id, Path: path}, nil
}

func TestPoolRoutesByDatabase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	lookup := mapLookup{1: filepath.Join(dir, "one.db"), 2: filepath.Join(dir, "two.db")}

	opened := 0
	pool := NewPool(lookup, func(path string) (ContextDB, error) {
		opened++
		return Open(path)
	}, nil)
	t.Cleanup(func() { _ = pool.Close() })

	a := models.Context{ID: 7, DatabaseID: 1}
	b := models.Context{ID: 7, DatabaseID: 2}

	docs := pool.Documents()
	require.NoError(t, docs.CreateInfoitem(ctx, a, &models.Infoitem{Versions: versionsOf("in-one")}))
	require.NoError(t, docs.CreateInfoitem(ctx, b, &models.Infoitem{Versions: versionsOf("in-two")}))

	ids, err := docs.ListBlobIDs(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"in-one"}, ids)

	ids, err = docs.ListBlobIDs(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"in-two"}, ids)
	assert.Equal(t, 2, opened)

	_, err = docs.ListBlobIDs(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, opened, "handles are reused")

	_, err = pool.Attachments().ListBlobIDs(ctx, models.Context{ID: 1, DatabaseID: 3})
	require.Error(t, err)
}

func TestPoolAttachmentsAndAdmin(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db.db")
	pool := NewPool(mapLookup{1: path}, nil, nil)
	t.Cleanup(func() { _ = pool.Close() })

	tenant := models.Context{ID: 4, DatabaseID: 1}
	db, err := pool.ForContext(ctx, tenant)
	require.NoError(t, err)
	require.NoError(t, db.CreateAttachment(ctx, &models.Attachment{ContextID: 4, Module: "contacts", BlobID: "x"}))
	require.NoError(t, db.CreateUser(ctx, &models.User{ContextID: 4, Username: "admin", IsAdmin: true}))

	atts := pool.Attachments()
	require.NoError(t, atts.RepointBlob(ctx, tenant, "x", "y", models.BlobInfo{Size: 1}, ""))
	ids, err := atts.ListBlobIDs(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, ids)
	require.NoError(t, atts.DeleteByBlob(ctx, tenant, "y"))

	admin, err := pool.Documents().ContextAdmin(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, "admin", admin.Username)
}
