package files

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/gatehouse/gatehouse/pkg/errdefs"
)

// ObjectStore writes and reads file bytes on the local filesystem. Paths
// handed back are relative to the root so metadata stays portable across
// mounts.
type ObjectStore struct {
	rootDir string
}

// NewObjectStore creates the storage root if it does not exist.
func NewObjectStore(rootDir string) (*ObjectStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, errdefs.Storage("failed to create storage root: %v", err)
	}
	return &ObjectStore{rootDir: rootDir}, nil
}

// Root returns the storage root directory.
func (s *ObjectStore) Root() string {
	return s.rootDir
}

// partition returns the directory for an owner's files at an access level.
// Everything non-public lands under private.
func partition(accessLevel AccessLevel, ownerID int64) string {
	visibility := "private"
	if accessLevel == AccessPublic {
		visibility = "public"
	}
	return filepath.Join(visibility, fmt.Sprintf("user_%d", ownerID))
}

// StorageName generates a collision-resistant storage filename preserving
// only the original extension. The original name is never used as a path
// component, so it cannot traverse.
func StorageName(originalFilename string) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	return uuid.New().String() + ext
}

// Save streams src into a freshly named object under the owner's partition
// and returns the storage filename and root-relative path.
func (s *ObjectStore) Save(originalFilename string, accessLevel AccessLevel, ownerID int64, src io.Reader) (filename, relPath string, size int64, err error) {
	filename = StorageName(originalFilename)
	relPath = filepath.Join(partition(accessLevel, ownerID), filename)
	absPath := filepath.Join(s.rootDir, relPath)

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return "", "", 0, errdefs.Storage("failed to create owner directory: %v", err)
	}

	dst, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", "", 0, errdefs.Storage("failed to create object: %v", err)
	}

	size, err = io.Copy(dst, src)
	if err != nil {
		dst.Close()
		os.Remove(absPath)
		return "", "", 0, errdefs.Storage("failed to write object: %v", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(absPath)
		return "", "", 0, errdefs.Storage("failed to flush object: %v", err)
	}

	return filename, relPath, size, nil
}

// Open returns a reader over a stored object. A missing object is a
// not-found error so callers can distinguish it from an unreachable store.
func (s *ObjectStore) Open(relPath string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.rootDir, relPath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errdefs.NotFound("object %s is missing from storage", relPath)
	}
	if err != nil {
		return nil, errdefs.Storage("failed to open object %s: %v", relPath, err)
	}
	return f, nil
}

// Delete removes a stored object. Deleting an already-absent object succeeds.
func (s *ObjectStore) Delete(relPath string) error {
	err := os.Remove(filepath.Join(s.rootDir, relPath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errdefs.Storage("failed to delete object %s: %v", relPath, err)
	}
	return nil
}

// Walk visits every stored object's root-relative path.
func (s *ObjectStore) Walk(fn func(relPath string, info fs.FileInfo) error) error {
	return filepath.Walk(s.rootDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.rootDir, path)
		if err != nil {
			return err
		}
		return fn(rel, info)
	})
}
