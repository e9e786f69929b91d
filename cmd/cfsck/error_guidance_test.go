package main

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"cfsck/internal/api"
)

func TestFormatCLIError_NetworkGuidance(t *testing.T) {
	err := &net.DNSError{Err: "dial tcp: connection refused", Name: "127.0.0.1", IsTemporary: true}
	lines := formatCLIError(err)
	assert.Contains(t, lines, "hint: ensure a cfsck server is running at CFSCK_API_URL.")
	assert.Contains(t, lines, "hint: start local server manually with: cfsck srv")
}

func TestFormatCLIError_APIUnknownServiceGuidance(t *testing.T) {
	err := &api.APIError{Status: 404, Message: "api error: 404 Not Found"}
	assert.Contains(t, formatCLIError(err), "hint: verify CFSCK_API_URL points to a cfsck server.")
}

func TestFormatCLIError_NotFoundGuidance(t *testing.T) {
	err := fmt.Errorf("list missing: %w", &api.APIError{Status: 404, Code: "not_found", Message: "context 9 not found"})
	lines := formatCLIError(err)
	assert.Equal(t, "list missing: not_found: context 9 not found", lines[0])
	assert.Contains(t, lines, "hint: list registered ids with: cfsck context list, cfsck filestore list, cfsck database list")
}

func TestFormatCLIError_RepairBusyGuidance(t *testing.T) {
	err := &api.APIError{Status: 429, Code: "resource_exhausted", Message: "too many concurrent repair requests"}
	assert.Contains(t, formatCLIError(err), "hint: another repair is running; retry once it has finished.")
}

func TestFormatCLIError_APIInternalGuidance(t *testing.T) {
	err := &api.APIError{Status: 500, Code: "internal", Message: "internal error"}
	assert.Contains(t, formatCLIError(err), "hint: server returned an internal error; check server logs for details.")
}

func TestFormatCLIError_Timeout(t *testing.T) {
	lines := formatCLIError(fmt.Errorf("repair: %w", context.DeadlineExceeded))
	assert.Len(t, lines, 2)
}

func TestFormatCLIError_Nil(t *testing.T) {
	assert.Nil(t, formatCLIError(nil))
}
