package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FilestoreScheme identifies the backend a filestore URI points at.
type FilestoreScheme string

const (
	FilestoreSchemeFile FilestoreScheme = "file"
	FilestoreSchemeS3   FilestoreScheme = "s3"
)

var validFilestoreSchemes = map[FilestoreScheme]struct{}{
	FilestoreSchemeFile: {},
	FilestoreSchemeS3:   {},
}

// Context is one isolated tenant with its own filestore and database assignment.
type Context struct {
	ID          int       `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	FilestoreID int       `json:"filestore_id" yaml:"filestore_id"`
	DatabaseID  int       `json:"database_id" yaml:"database_id"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// ContextUsage is the filestore space a context occupied at its last recount.
type ContextUsage struct {
	ContextID int       `json:"context_id" yaml:"context_id"`
	UsedBytes int64     `json:"used_bytes" yaml:"used_bytes"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Filestore is a registered blob storage location shared by one or more contexts.
type Filestore struct {
	ID          int       `json:"id" yaml:"id"`
	URI         string    `json:"uri" yaml:"uri"`
	MaxContexts int       `json:"max_contexts" yaml:"max_contexts"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Database is a registered metadata database shared by one or more contexts.
type Database struct {
	ID        int       `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Path      string    `json:"path" yaml:"path"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ParseFilestoreURI validates a filestore URI and returns its scheme.
func ParseFilestoreURI(raw string) (*url.URL, FilestoreScheme, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "", fmt.Errorf("filestore uri is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("invalid filestore uri: %w", err)
	}
	scheme := FilestoreScheme(strings.ToLower(u.Scheme))
	if _, ok := validFilestoreSchemes[scheme]; !ok {
		return nil, "", fmt.Errorf("unsupported filestore scheme: %q", u.Scheme)
	}
	switch scheme {
	case FilestoreSchemeFile:
		if u.Path == "" {
			return nil, "", fmt.Errorf("file filestore uri requires a path")
		}
	case FilestoreSchemeS3:
		if u.Host == "" {
			return nil, "", fmt.Errorf("s3 filestore uri requires a bucket")
		}
	}
	return u, scheme, nil
}
