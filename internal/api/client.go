package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// Repairs walk whole filestores, so the default is far above a
	// typical request timeout.
	defaultHTTPTimeout = 5 * time.Minute
	httpTimeoutEnvKey  = "CFSCK_HTTP_TIMEOUT"
)

// Client is a simple HTTP client for the cfsck API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil, nil)
}

// ListMissing returns blob ids referenced by metadata but absent from the filestore.
func (c *Client) ListMissing(ctx context.Context, scope string) (ListResponse, error) {
	var resp ListResponse
	err := c.do(ctx, http.MethodPost, "/v1/consistency/missing", nil, nil, ScopeRequest{Scope: scope}, &resp)
	return resp, err
}

// ListUnassigned returns blob ids present in the filestore but unreferenced.
func (c *Client) ListUnassigned(ctx context.Context, scope string) (ListResponse, error) {
	var resp ListResponse
	err := c.do(ctx, http.MethodPost, "/v1/consistency/unassigned", nil, nil, ScopeRequest{Scope: scope}, &resp)
	return resp, err
}

// Repair applies a policy. The server refuses unless confirm is set.
func (c *Client) Repair(ctx context.Context, req RepairRequest, confirm bool) (RepairResponse, error) {
	var resp RepairResponse
	var header http.Header
	if confirm {
		header = http.Header{"X-Confirm": []string{"true"}}
	}
	err := c.do(ctx, http.MethodPost, "/v1/consistency/repair", nil, header, req, &resp)
	return resp, err
}

func (c *Client) ListFilestores(ctx context.Context) ([]FilestoreResponse, error) {
	var resp []FilestoreResponse
	err := c.do(ctx, http.MethodGet, "/v1/filestores", nil, nil, nil, &resp)
	return resp, err
}

func (c *Client) RegisterFilestore(ctx context.Context, req FilestoreRequest) (FilestoreResponse, error) {
	var resp FilestoreResponse
	err := c.do(ctx, http.MethodPost, "/v1/filestores", nil, nil, req, &resp)
	return resp, err
}

func (c *Client) ListDatabases(ctx context.Context) ([]DatabaseResponse, error) {
	var resp []DatabaseResponse
	err := c.do(ctx, http.MethodGet, "/v1/databases", nil, nil, nil, &resp)
	return resp, err
}

func (c *Client) RegisterDatabase(ctx context.Context, req DatabaseRequest) (DatabaseResponse, error) {
	var resp DatabaseResponse
	err := c.do(ctx, http.MethodPost, "/v1/databases", nil, nil, req, &resp)
	return resp, err
}

// ListContexts lists contexts, optionally filtered by "filestore" and
// "database" query values.
func (c *Client) ListContexts(ctx context.Context, query url.Values) ([]ContextResponse, error) {
	var resp []ContextResponse
	err := c.do(ctx, http.MethodGet, "/v1/contexts", query, nil, nil, &resp)
	return resp, err
}

func (c *Client) RegisterContext(ctx context.Context, req ContextRequest) (ContextResponse, error) {
	var resp ContextResponse
	err := c.do(ctx, http.MethodPost, "/v1/contexts", nil, nil, req, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, header http.Header, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
	}
	return apiErr
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
