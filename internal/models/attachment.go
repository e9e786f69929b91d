package models

import (
	"fmt"
	"strings"
	"time"
)

// AttachmentModule names the groupware module an attachment hangs off.
type AttachmentModule string

const (
	AttachmentModuleCalendar AttachmentModule = "calendar"
	AttachmentModuleTasks    AttachmentModule = "tasks"
	AttachmentModuleContacts AttachmentModule = "contacts"
)

var validAttachmentModules = map[AttachmentModule]struct{}{
	AttachmentModuleCalendar: {},
	AttachmentModuleTasks:    {},
	AttachmentModuleContacts: {},
}

// Attachment is a file attached to some other groupware object.
type Attachment struct {
	ContextID  int       `json:"context_id"`
	ID         int       `json:"id"`
	Module     string    `json:"module"`
	AttachedTo int       `json:"attached_to"`
	Filename   string    `json:"filename,omitempty"`
	FileSize   int64     `json:"file_size"`
	MediaType  string    `json:"media_type,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	BlobID     string    `json:"blob_id"`
	CreatedBy  int       `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func ParseAttachmentModule(raw string) (AttachmentModule, error) {
	value := AttachmentModule(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("attachment module is required")
	}
	if _, ok := validAttachmentModules[value]; !ok {
		return "", fmt.Errorf("invalid attachment module: %s", value)
	}
	return value, nil
}
