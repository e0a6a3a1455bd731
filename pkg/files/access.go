package files

import (
	"context"
	"io"
	"mime"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/gatehouse/gatehouse/pkg/errdefs"
	"github.com/gatehouse/gatehouse/pkg/rbac"
)

// CanAccess decides whether user may read file. Evaluated in this exact
// order:
//
//  1. Owner always wins, regardless of access level or required permission.
//  2. If a required permission is set, access follows from holding it,
//     directly or via any role.
//  3. Otherwise deny. A private file with no required permission is
//     readable by nobody but its owner.
func CanAccess(user *rbac.User, file *File) bool {
	if user == nil || file == nil {
		return false
	}
	if file.OwnerID == user.ID {
		return true
	}
	if file.RequiredPermission != nil && *file.RequiredPermission != "" {
		return rbac.HasPermission(user, *file.RequiredPermission)
	}
	return false
}

// Service combines the metadata store and the object store into the file
// operations exposed over HTTP.
type Service struct {
	store   *Store
	objects *ObjectStore
	logger  *logrus.Logger

	maxUploadSize int64

	// allowedTypes restricts upload MIME types when non-empty.
	allowedTypes map[string]bool
}

// NewService creates the file service. allowedTypes may be nil to accept
// any content type.
func NewService(store *Store, objects *ObjectStore, maxUploadSize int64, allowedTypes []string, logger *logrus.Logger) *Service {
	var allowed map[string]bool
	if len(allowedTypes) > 0 {
		allowed = make(map[string]bool, len(allowedTypes))
		for _, t := range allowedTypes {
			allowed[t] = true
		}
	}
	return &Service{
		store:         store,
		objects:       objects,
		logger:        logger,
		maxUploadSize: maxUploadSize,
		allowedTypes:  allowed,
	}
}

// UploadRequest carries one inbound upload.
type UploadRequest struct {
	OriginalFilename   string
	ContentType        string
	Size               int64
	AccessLevel        AccessLevel
	RequiredPermission *string
	Body               io.Reader
}

// Upload validates the request, writes the bytes, then commits the metadata
// row. Bytes land on disk before the row exists, so a crash in between
// leaves an orphaned object but never a record pointing at nothing; the
// maintenance sweep reclaims orphans later.
func (s *Service) Upload(ctx context.Context, owner *rbac.User, req UploadRequest) (*File, error) {
	if req.OriginalFilename == "" {
		return nil, errdefs.Validation("filename is required")
	}
	if req.Size > s.maxUploadSize {
		return nil, errdefs.Validation("file exceeds maximum size of %d bytes", s.maxUploadSize)
	}
	if req.AccessLevel == "" {
		req.AccessLevel = AccessPrivate
	}
	if !req.AccessLevel.Valid() {
		return nil, errdefs.Validation("unknown access level %q", req.AccessLevel)
	}
	if s.allowedTypes != nil && !s.allowedTypes[baseMIME(req.ContentType)] {
		return nil, errdefs.Validation("unsupported content type %q", req.ContentType)
	}

	// Guard against clients understating Content-Length.
	limited := io.LimitReader(req.Body, s.maxUploadSize+1)

	filename, relPath, size, err := s.objects.Save(req.OriginalFilename, req.AccessLevel, owner.ID, limited)
	if err != nil {
		return nil, err
	}
	if size > s.maxUploadSize {
		s.objects.Delete(relPath)
		return nil, errdefs.Validation("file exceeds maximum size of %d bytes", s.maxUploadSize)
	}

	file := &File{
		Filename:           filename,
		OriginalFilename:   req.OriginalFilename,
		FilePath:           relPath,
		FileSize:           size,
		ContentType:        req.ContentType,
		AccessLevel:        req.AccessLevel,
		RequiredPermission: req.RequiredPermission,
		OwnerID:            owner.ID,
	}
	if ext := filepath.Ext(req.OriginalFilename); ext != "" {
		file.FileExtension = &ext
	}

	if err := s.store.Create(ctx, file); err != nil {
		// Roll back the object so the failed upload leaves nothing behind.
		if cleanupErr := s.objects.Delete(relPath); cleanupErr != nil {
			s.logger.WithError(cleanupErr).WithField("path", relPath).
				Warn("failed to clean up object after metadata failure")
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":  file.ID,
		"owner_id": owner.ID,
		"size":     size,
	}).Info("file uploaded")
	return file, nil
}

// Download re-checks access and returns the file with a reader over its
// bytes. An inactive record and a missing backing object both surface as
// not found; the download counter increments once per successful open.
func (s *Service) Download(ctx context.Context, user *rbac.User, fileID int64) (*File, io.ReadCloser, error) {
	file, err := s.store.Get(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if !file.IsActive {
		return nil, nil, errdefs.NotFound("file %d", fileID)
	}
	if !CanAccess(user, file) {
		return nil, nil, errdefs.Forbidden("no access to file %d", fileID)
	}

	body, err := s.objects.Open(file.FilePath)
	if err != nil {
		return nil, nil, err
	}

	if err := s.store.IncrementDownloadCount(ctx, fileID); err != nil {
		body.Close()
		return nil, nil, err
	}
	file.DownloadCount++

	return file, body, nil
}

// Delete removes the backing object, then the metadata row. Only the owner
// may delete, no permission grant substitutes. Object removal is
// best-effort: a storage failure is logged and does not keep the row alive.
func (s *Service) Delete(ctx context.Context, user *rbac.User, fileID int64) error {
	file, err := s.store.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if file.OwnerID != user.ID {
		return errdefs.Forbidden("only the owner may delete file %d", fileID)
	}

	if err := s.objects.Delete(file.FilePath); err != nil {
		s.logger.WithError(err).WithField("path", file.FilePath).
			Warn("failed to delete object, removing metadata anyway")
	}

	if err := s.store.Delete(ctx, fileID); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":  fileID,
		"owner_id": user.ID,
	}).Info("file deleted")
	return nil
}

// Update applies a partial metadata patch. Only the owner may update.
func (s *Service) Update(ctx context.Context, user *rbac.User, fileID int64, patch FilePatch) (*File, error) {
	file, err := s.store.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != user.ID {
		return nil, errdefs.Forbidden("only the owner may update file %d", fileID)
	}
	if patch.AccessLevel != nil && !patch.AccessLevel.Valid() {
		return nil, errdefs.Validation("unknown access level %q", *patch.AccessLevel)
	}

	return s.store.Update(ctx, fileID, patch)
}

// List returns a page of the caller's own active files.
func (s *Service) List(ctx context.Context, user *rbac.User, limit, offset int) ([]File, int64, error) {
	return s.store.ListByOwner(ctx, user.ID, limit, offset)
}

// baseMIME strips any parameters from a content type for allow-list
// comparison.
func baseMIME(contentType string) string {
	base, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return base
}
