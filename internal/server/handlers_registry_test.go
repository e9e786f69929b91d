package server

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfsck/internal/api"
)

func TestRegisterAndListFilestores(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/filestores", api.FilestoreRequest{URI: "s3://bucket/prefix", MaxContexts: 2}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created api.FilestoreResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, 2, created.ID)
	assert.Equal(t, "s3://bucket/prefix", created.URI)

	w = env.do(t, http.MethodGet, "/v1/filestores", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []api.FilestoreResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 2)
	assert.Equal(t, 1, listed[0].ID)

	w = env.do(t, http.MethodPost, "/v1/filestores", api.FilestoreRequest{URI: "s3://bucket/prefix"}, nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterFilestoreRejectsBadURI(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/v1/filestores", api.FilestoreRequest{URI: "ftp://host/x"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterDatabaseRequiresFields(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/v1/databases", api.DatabaseRequest{Name: "db2"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeMissingRequired, decodeErrorResponse(t, w).ErrorCode)

	w = env.do(t, http.MethodPost, "/v1/databases", api.DatabaseRequest{Name: "db2", Path: filepath.Join(t.TempDir(), "db2.db")}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/v1/databases", nil, nil)
	var listed []api.DatabaseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)
}

func TestRegisterAndFilterContexts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/databases", api.DatabaseRequest{Name: "db2", Path: filepath.Join(t.TempDir(), "db2.db")}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/v1/contexts", api.ContextRequest{Name: "ctx8", FilestoreID: 1, DatabaseID: 2, Disabled: true}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created api.ContextResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, 8, created.ID)
	assert.False(t, created.Enabled)

	w = env.do(t, http.MethodGet, "/v1/contexts?database=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []api.ContextResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "ctx8", listed[0].Name)

	w = env.do(t, http.MethodGet, "/v1/contexts?filestore=1", nil, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)
}

func TestRegisterContextErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/contexts", api.ContextRequest{Name: "ctx9", FilestoreID: 5, DatabaseID: 1}, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/v1/contexts", api.ContextRequest{Name: "ctx7", FilestoreID: 1, DatabaseID: 1}, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/v1/contexts", api.ContextRequest{FilestoreID: 1, DatabaseID: 1}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/v1/contexts?filestore=x", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidQuery, decodeErrorResponse(t, w).ErrorCode)
}
