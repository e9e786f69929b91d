package api

import "time"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ScopeRequest selects the contexts a list call covers, e.g. "context 7".
type ScopeRequest struct {
	Scope string `json:"scope"`
}

// ListResponse maps a context id to the blob ids found for it.
type ListResponse struct {
	Results map[string][]string `json:"results" yaml:"results"`
}

// RepairRequest asks for a policy to be applied to a scope.
type RepairRequest struct {
	Scope       string `json:"scope"`
	Policy      string `json:"policy"`
	FailureMode string `json:"failure_mode,omitempty"`
}

// RepairResponse reports what a repair covered.
type RepairResponse struct {
	Scope    string `json:"scope" yaml:"scope"`
	Policy   string `json:"policy" yaml:"policy"`
	Contexts int    `json:"contexts" yaml:"contexts"`
	Skipped  []int  `json:"skipped,omitempty" yaml:"skipped,omitempty"`

	// Usage maps context ids to their recounted filestore bytes.
	Usage map[string]int64 `json:"usage,omitempty" yaml:"usage,omitempty"`
}

// FilestoreRequest registers a filestore.
type FilestoreRequest struct {
	URI         string `json:"uri"`
	MaxContexts int    `json:"max_contexts,omitempty"`
}

// FilestoreResponse is a registered filestore.
type FilestoreResponse struct {
	ID          int       `json:"id" yaml:"id"`
	URI         string    `json:"uri" yaml:"uri"`
	MaxContexts int       `json:"max_contexts" yaml:"max_contexts"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// DatabaseRequest registers a metadata database.
type DatabaseRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// DatabaseResponse is a registered database.
type DatabaseResponse struct {
	ID        int       `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Path      string    `json:"path" yaml:"path"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ContextRequest registers a context. A zero ID lets the server pick one.
type ContextRequest struct {
	ID          int    `json:"id,omitempty"`
	Name        string `json:"name"`
	FilestoreID int    `json:"filestore_id"`
	DatabaseID  int    `json:"database_id"`
	Disabled    bool   `json:"disabled,omitempty"`
}

// ContextResponse is a registered context.
type ContextResponse struct {
	ID          int       `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	FilestoreID int       `json:"filestore_id" yaml:"filestore_id"`
	DatabaseID  int       `json:"database_id" yaml:"database_id"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}
