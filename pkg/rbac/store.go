package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/gatehouse/gatehouse/pkg/errdefs"
)

// Store handles identity and access-graph persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks and migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// isUniqueViolation reports whether err is a unique-constraint error. The
// string match covers sqlite, which backs the test schema.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const userColumns = `id, email, username, password_hash, first_name, last_name, phone, is_active, created_at, updated_at`

func scanUser(scanner interface{ Scan(dest ...interface{}) error }) (*User, error) {
	var u User
	err := scanner.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Phone,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user. Fails with a conflict error when the email
// or username is already taken.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (email, username, password_hash, first_name, last_name, phone, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Phone,
		true,
		now,
		now,
	).Scan(&user.ID)

	if isUniqueViolation(err) {
		return errdefs.Conflict("email already registered")
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.IsActive = true
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUser retrieves a user row by id, without relations.
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NotFound("user %d", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user row by email, without relations.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NotFound("user %s", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// GetUserWithGrants retrieves a user with direct permissions and the full
// roles -> permissions chain, eagerly loaded within a single read transaction
// so one resolution never observes two different grant sets.
func (s *Store) GetUserWithGrants(ctx context.Context, userID int64) (*User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin grant load: %w", err)
	}
	defer tx.Rollback()

	user, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NotFound("user %d", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	// Direct permissions.
	directQuery := `
		SELECT p.id, p.name, p.description
		FROM permissions p
		JOIN user_permissions up ON up.permission_id = p.id
		WHERE up.user_id = $1
		ORDER BY p.id
	`
	rows, err := tx.QueryContext(ctx, directQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load direct permissions: %w", err)
	}
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		user.Permissions = append(user.Permissions, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Roles.
	rolesQuery := `
		SELECT r.id, r.name, r.description
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id
	`
	rows, err = tx.QueryContext(ctx, rolesQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	roleIndex := make(map[int64]int)
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roleIndex[r.ID] = len(user.Roles)
		user.Roles = append(user.Roles, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Role permissions, one pass for all roles.
	rolePermsQuery := `
		SELECT ur.role_id, p.id, p.name, p.description
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1
		ORDER BY ur.role_id, p.id
	`
	rows, err = tx.QueryContext(ctx, rolePermsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	for rows.Next() {
		var roleID int64
		var p Permission
		if err := rows.Scan(&roleID, &p.ID, &p.Name, &p.Description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		if idx, ok := roleIndex[roleID]; ok {
			user.Roles[idx].Permissions = append(user.Roles[idx].Permissions, p)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit grant load: %w", err)
	}

	return user, nil
}

// ListUsers returns a page of users and the total count.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]User, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, total, rows.Err()
}

// UpdateUser applies the non-nil fields of patch to the user and returns the
// updated row. The password field must be pre-hashed by the caller.
func (s *Store) UpdateUser(ctx context.Context, userID int64, patch UserPatch) (*User, error) {
	query := `
		UPDATE users SET
			email = COALESCE($1, email),
			username = COALESCE($2, username),
			password_hash = COALESCE($3, password_hash),
			first_name = COALESCE($4, first_name),
			last_name = COALESCE($5, last_name),
			phone = COALESCE($6, phone),
			is_active = COALESCE($7, is_active),
			updated_at = $8
		WHERE id = $9
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query,
		patch.Email,
		patch.Username,
		patch.Password,
		patch.FirstName,
		patch.LastName,
		patch.Phone,
		patch.IsActive,
		time.Now(),
		userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NotFound("user %d", userID)
	}
	if isUniqueViolation(err) {
		return nil, errdefs.Conflict("email or username already taken")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// UpdatePassword replaces a user's password hash.
func (s *Store) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, time.Now(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errdefs.NotFound("user %d", userID)
	}
	return nil
}

// DeleteUser hard-deletes a user. Junction rows cascade; owned files are
// deliberately left in place (see DESIGN.md).
func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errdefs.NotFound("user %d", userID)
	}
	return nil
}

// CreateRole creates a new role. Fails with a conflict error when the name
// is taken.
func (s *Store) CreateRole(ctx context.Context, name string, description *string) (*Role, error) {
	role := &Role{Name: name, Description: description}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO roles (name, description) VALUES ($1, $2) RETURNING id`,
		name, description,
	).Scan(&role.ID)

	if isUniqueViolation(err) {
		return nil, errdefs.Conflict("role %q already exists", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	return role, nil
}

// GetRoleByName retrieves a role by its unique name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM roles WHERE name = $1`,
		name,
	).Scan(&role.ID, &role.Name, &role.Description)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NotFound("role %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// ListRoles returns a page of roles and the total count.
func (s *Store) ListRoles(ctx context.Context, limit, offset int) ([]Role, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count roles: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description FROM roles ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description); err != nil {
			return nil, 0, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, total, rows.Err()
}

// CreatePermission creates a new permission. Fails with a conflict error
// when the name is taken.
func (s *Store) CreatePermission(ctx context.Context, name string, description *string) (*Permission, error) {
	perm := &Permission{Name: name, Description: description}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO permissions (name, description) VALUES ($1, $2) RETURNING id`,
		name, description,
	).Scan(&perm.ID)

	if isUniqueViolation(err) {
		return nil, errdefs.Conflict("permission %q already exists", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create permission: %w", err)
	}
	return perm, nil
}

// GetPermissionByName retrieves a permission by its unique name.
func (s *Store) GetPermissionByName(ctx context.Context, name string) (*Permission, error) {
	var perm Permission
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM permissions WHERE name = $1`,
		name,
	).Scan(&perm.ID, &perm.Name, &perm.Description)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NotFound("permission %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &perm, nil
}

// ListPermissions returns a page of permissions and the total count.
func (s *Store) ListPermissions(ctx context.Context, limit, offset int) ([]Permission, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM permissions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count permissions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description FROM permissions ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, 0, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, total, rows.Err()
}

// AssignRoleToUser grants a role to a user. Assigning an already-held role
// is a no-op that still succeeds; a missing user or role fails with a
// not-found error.
func (s *Store) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin assignment: %w", err)
	}
	defer tx.Rollback()

	if err := checkExists(ctx, tx, "users", userID, "user"); err != nil {
		return err
	}
	if err := checkExists(ctx, tx, "roles", roleID, "role"); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return tx.Commit()
}

// AssignPermissionToRole grants a permission to a role, idempotently.
func (s *Store) AssignPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin assignment: %w", err)
	}
	defer tx.Rollback()

	if err := checkExists(ctx, tx, "roles", roleID, "role"); err != nil {
		return err
	}
	if err := checkExists(ctx, tx, "permissions", permissionID, "permission"); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roleID, permissionID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign permission: %w", err)
	}
	return tx.Commit()
}

// AssignPermissionToUser grants a permission directly to a user, idempotently.
func (s *Store) AssignPermissionToUser(ctx context.Context, userID, permissionID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin assignment: %w", err)
	}
	defer tx.Rollback()

	if err := checkExists(ctx, tx, "users", userID, "user"); err != nil {
		return err
	}
	if err := checkExists(ctx, tx, "permissions", permissionID, "permission"); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_permissions (user_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, permissionID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign permission: %w", err)
	}
	return tx.Commit()
}

// checkExists verifies a row exists in table by id. The table name is always
// a compile-time constant at call sites.
func checkExists(ctx context.Context, tx *sql.Tx, table string, id int64, label string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return errdefs.NotFound("%s %d", label, id)
	}
	if err != nil {
		return fmt.Errorf("failed to check %s existence: %w", label, err)
	}
	return nil
}
