package models

import "time"

// Infoitem is a document-management entry. Its content lives in versions.
type Infoitem struct {
	ContextID      int               `json:"context_id"`
	ID             int               `json:"id"`
	FolderID       int               `json:"folder_id"`
	Title          string            `json:"title,omitempty"`
	Description    string            `json:"description,omitempty"`
	CreatedBy      int               `json:"created_by"`
	CurrentVersion int               `json:"current_version"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Versions       []InfoitemVersion `json:"versions,omitempty"`
}

// InfoitemVersion is one version of an infoitem referencing exactly one blob.
type InfoitemVersion struct {
	ContextID      int       `json:"context_id"`
	InfoitemID     int       `json:"infoitem_id"`
	Version        int       `json:"version"`
	BlobID         string    `json:"blob_id,omitempty"`
	Title          string    `json:"title,omitempty"`
	Description    string    `json:"description,omitempty"`
	Filename       string    `json:"filename,omitempty"`
	FileSize       int64     `json:"file_size"`
	MediaType      string    `json:"media_type,omitempty"`
	VersionComment string    `json:"version_comment,omitempty"`
	Categories     string    `json:"categories,omitempty"`
	CreatedBy      int       `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// User is a context user; one per context carries the admin flag.
type User struct {
	ContextID         int    `json:"context_id"`
	ID                int    `json:"id"`
	Username          string `json:"username"`
	IsAdmin           bool   `json:"is_admin"`
	InfostoreFolderID int    `json:"infostore_folder_id"`
}

// BlobInfo carries the size and media type of a stored blob.
type BlobInfo struct {
	Size      int64  `json:"size"`
	MediaType string `json:"media_type"`
}
