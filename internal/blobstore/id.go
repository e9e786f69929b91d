package blobstore

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// newBlobID returns a fresh sharded id of the form xx/yy/<uuid>.
func newBlobID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s/%s/%s", raw[0:2], raw[2:4], raw)
}

// cleanBlobID rejects ids that would escape the context directory.
func cleanBlobID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("blob id is required")
	}
	if strings.HasPrefix(id, "/") || strings.Contains(id, "\\") {
		return "", fmt.Errorf("blob id must be relative: %q", id)
	}
	clean := path.Clean(id)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid blob id: %q", id)
	}
	return clean, nil
}
