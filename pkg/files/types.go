// Package files implements the file upload service and its per-file access
// policy layered on top of the permission graph.
package files

import (
	"fmt"
	"time"
)

// AccessLevel is a file's coarse visibility tag. Only the public/non-public
// distinction affects behavior today: it selects the storage partition.
type AccessLevel string

const (
	AccessPublic    AccessLevel = "public"
	AccessPrivate   AccessLevel = "private"
	AccessProtected AccessLevel = "protected"
	AccessAdmin     AccessLevel = "admin"
	AccessCustom    AccessLevel = "custom"
)

// Valid reports whether the access level is one of the known values.
func (a AccessLevel) Valid() bool {
	switch a {
	case AccessPublic, AccessPrivate, AccessProtected, AccessAdmin, AccessCustom:
		return true
	}
	return false
}

// ExpandTypeGroups resolves configured upload type entries into MIME types.
// The names "images" and "documents" expand to the corresponding group;
// anything else passes through as a literal MIME type.
func ExpandTypeGroups(entries []string) []string {
	var types []string
	for _, entry := range entries {
		switch entry {
		case "images":
			types = append(types, ImageTypes...)
		case "documents":
			types = append(types, DocumentTypes...)
		default:
			types = append(types, entry)
		}
	}
	return types
}

// Common MIME allow-list groups for upload validation.
var (
	ImageTypes = []string{
		"image/jpeg", "image/png", "image/gif", "image/webp", "image/svg+xml",
	}
	DocumentTypes = []string{
		"application/pdf", "text/plain", "text/csv",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}
)

// File is an owned stored object plus its metadata row.
type File struct {
	ID               int64       `json:"id"`
	Filename         string      `json:"filename"`
	OriginalFilename string      `json:"original_filename"`
	FilePath         string      `json:"file_path"`
	FileSize         int64       `json:"file_size"`
	ContentType      string      `json:"content_type"`
	FileExtension    *string     `json:"file_extension,omitempty"`
	AccessLevel      AccessLevel `json:"access_level"`

	// RequiredPermission, when set, is the sole non-owner access path.
	RequiredPermission *string `json:"required_permission,omitempty"`

	// OwnerID is immutable after creation.
	OwnerID int64 `json:"owner_id"`

	IsActive      bool      `json:"is_active"`
	DownloadCount int64     `json:"download_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DownloadURL returns where the file's bytes are served from. Public files
// sit under the static storage prefix; everything else goes through the
// access-checked API route.
func (f *File) DownloadURL() string {
	if f.AccessLevel == AccessPublic {
		return "/storage/" + f.FilePath
	}
	return fmt.Sprintf("/api/v1/files/%d", f.ID)
}

// FilePatch carries optional fields for a partial metadata update. Owner and
// path fields are deliberately absent.
type FilePatch struct {
	AccessLevel        *AccessLevel `json:"access_level,omitempty"`
	RequiredPermission *string      `json:"required_permission,omitempty"`
	IsActive           *bool        `json:"is_active,omitempty"`
}
