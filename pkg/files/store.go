package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gatehouse/gatehouse/pkg/errdefs"
)

// Store handles file metadata persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const fileColumns = `id, filename, original_filename, file_path, file_size, content_type,
	file_extension, access_level, required_permission, owner_id, is_active,
	download_count, created_at, updated_at`

func scanFile(scanner interface{ Scan(dest ...interface{}) error }) (*File, error) {
	var f File
	err := scanner.Scan(
		&f.ID,
		&f.Filename,
		&f.OriginalFilename,
		&f.FilePath,
		&f.FileSize,
		&f.ContentType,
		&f.FileExtension,
		&f.AccessLevel,
		&f.RequiredPermission,
		&f.OwnerID,
		&f.IsActive,
		&f.DownloadCount,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Create inserts a file metadata row. The object bytes must already be
// durably written before this is called.
func (s *Store) Create(ctx context.Context, file *File) error {
	query := `
		INSERT INTO files (filename, original_filename, file_path, file_size, content_type,
			file_extension, access_level, required_permission, owner_id, is_active,
			download_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		file.Filename,
		file.OriginalFilename,
		file.FilePath,
		file.FileSize,
		file.ContentType,
		file.FileExtension,
		file.AccessLevel,
		file.RequiredPermission,
		file.OwnerID,
		true,
		0,
		now,
		now,
	).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	file.IsActive = true
	file.DownloadCount = 0
	file.CreatedAt = now
	file.UpdatedAt = now
	return nil
}

// Get retrieves a file row by id, active or not.
func (s *Store) Get(ctx context.Context, fileID int64) (*File, error) {
	file, err := scanFile(s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1`, fileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NotFound("file %d", fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return file, nil
}

// ListByOwner returns a page of the owner's active files and the total count.
func (s *Store) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]File, int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE owner_id = $1 AND is_active`, ownerID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count files: %w", err)
	}

	query := `SELECT ` + fileColumns + ` FROM files
		WHERE owner_id = $1 AND is_active
		ORDER BY id DESC LIMIT $2 OFFSET $3`
	rows, err := s.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, *file)
	}
	return files, total, rows.Err()
}

// Update applies the non-nil fields of patch and returns the updated row.
func (s *Store) Update(ctx context.Context, fileID int64, patch FilePatch) (*File, error) {
	query := `
		UPDATE files SET
			access_level = COALESCE($1, access_level),
			required_permission = COALESCE($2, required_permission),
			is_active = COALESCE($3, is_active),
			updated_at = $4
		WHERE id = $5
		RETURNING ` + fileColumns

	file, err := scanFile(s.db.QueryRowContext(ctx, query,
		patch.AccessLevel,
		patch.RequiredPermission,
		patch.IsActive,
		time.Now(),
		fileID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NotFound("file %d", fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update file: %w", err)
	}
	return file, nil
}

// IncrementDownloadCount bumps the counter by exactly one.
func (s *Store) IncrementDownloadCount(ctx context.Context, fileID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE files SET download_count = download_count + 1, updated_at = $1 WHERE id = $2`,
		time.Now(), fileID,
	)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errdefs.NotFound("file %d", fileID)
	}
	return nil
}

// Delete hard-deletes the metadata row.
func (s *Store) Delete(ctx context.Context, fileID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errdefs.NotFound("file %d", fileID)
	}
	return nil
}

// KnownPaths returns every file_path currently referenced by a metadata row,
// active or not. Used by the orphan sweep.
func (s *Store) KnownPaths(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_path FROM files`)
	if err != nil {
		return nil, fmt.Errorf("failed to list file paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan file path: %w", err)
		}
		paths[p] = true
	}
	return paths, rows.Err()
}
