package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfsck/internal/api"
)

var confirmed = http.Header{"X-Confirm": []string{"true"}}

func decodeList(t *testing.T, w interface{ Result() *http.Response }) api.ListResponse {
	t.Helper()
	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out api.ListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestListMissingAndUnassigned(t *testing.T) {
	env := newTestEnv(t)

	missing := decodeList(t, env.do(t, http.MethodPost, "/v1/consistency/missing", api.ScopeRequest{Scope: "context 7"}, nil))
	assert.Empty(t, missing.Results)

	require.NoError(t, os.Remove(filepath.Join(env.ctxRoot, "B")))
	env.writeBlob(t, "D")

	missing = decodeList(t, env.do(t, http.MethodPost, "/v1/consistency/missing", api.ScopeRequest{Scope: "all"}, nil))
	assert.Equal(t, map[string][]string{"7": {"B"}}, missing.Results)

	unassigned := decodeList(t, env.do(t, http.MethodPost, "/v1/consistency/unassigned", api.ScopeRequest{Scope: "filestore 1"}, nil))
	assert.Equal(t, map[string][]string{"7": {"D"}}, unassigned.Results)
}

func TestListRejectsBadScope(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/consistency/missing", api.ScopeRequest{Scope: "tenant 7"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	errResp := decodeErrorResponse(t, w)
	assert.Equal(t, "invalid_argument", errResp.Code)
	assert.Equal(t, ErrCodeInvalidScope, errResp.ErrorCode)

	w = env.do(t, http.MethodPost, "/v1/consistency/unassigned", api.ScopeRequest{Scope: "context 99"}, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeErrorResponse(t, w).Code)
}

func TestListRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/v1/consistency/missing", map[string]any{"scope": 7}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidJSON, decodeErrorResponse(t, w).ErrorCode)
}

func TestRepairRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/v1/consistency/repair", api.RepairRequest{Scope: "context 7", Policy: "missing_entry_for_file:delete"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeMissingRequired, decodeErrorResponse(t, w).ErrorCode)
}

func TestRepairRejectsBadPolicy(t *testing.T) {
	env := newTestEnv(t)
	env.writeBlob(t, "D")

	w := env.do(t, http.MethodPost, "/v1/consistency/repair", api.RepairRequest{Scope: "context 7", Policy: "missing_entry_for_file"}, confirmed)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidPolicy, decodeErrorResponse(t, w).ErrorCode)

	_, err := os.Stat(filepath.Join(env.ctxRoot, "D"))
	require.NoError(t, err)
}

func TestRepairRejectsBadFailureMode(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/v1/consistency/repair", api.RepairRequest{Scope: "context 7", Policy: "missing_entry_for_file:delete", FailureMode: "retry"}, confirmed)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidMode, decodeErrorResponse(t, w).ErrorCode)
}

func TestRepairConverges(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.Remove(filepath.Join(env.ctxRoot, "B")))
	env.writeBlob(t, "D")

	w := env.do(t, http.MethodPost, "/v1/consistency/repair", api.RepairRequest{
		Scope:       "context 7",
		Policy:      "missing_file_for_infoitem:delete,missing_entry_for_file:delete",
		FailureMode: "continue",
	}, confirmed)
	require.Equal(t, http.StatusOK, w.Code)
	var summary api.RepairResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "context 7", summary.Scope)
	assert.Equal(t, 1, summary.Contexts)
	assert.Empty(t, summary.Skipped)
	require.Contains(t, summary.Usage, "7")
	usage, err := env.dir.GetContextUsage(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, summary.Usage["7"], usage.UsedBytes)
	assert.Positive(t, usage.UsedBytes)

	missing := decodeList(t, env.do(t, http.MethodPost, "/v1/consistency/missing", api.ScopeRequest{Scope: "context 7"}, nil))
	assert.Empty(t, missing.Results)
	unassigned := decodeList(t, env.do(t, http.MethodPost, "/v1/consistency/unassigned", api.ScopeRequest{Scope: "context 7"}, nil))
	assert.Empty(t, unassigned.Results)
}

func TestRepairLimiterRejectsConcurrentRuns(t *testing.T) {
	env := newTestEnv(t)
	env.srv.repairLimiter <- struct{}{}
	defer func() { <-env.srv.repairLimiter }()

	w := env.do(t, http.MethodPost, "/v1/consistency/repair", api.RepairRequest{Scope: "context 7", Policy: "missing_entry_for_file:delete"}, confirmed)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, ErrCodeResourceExhausted, decodeErrorResponse(t, w).ErrorCode)
}
