package rbac

import (
	"encoding/json"
	"strings"
	"time"
)

// User is an identity record. Roles and Permissions are populated only by
// eager-loading paths (Store.GetUserWithGrants); a bare row load leaves them nil.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     *string   `json:"username,omitempty"`
	PasswordHash string    `json:"-"`
	FirstName    *string   `json:"first_name,omitempty"`
	LastName     *string   `json:"last_name,omitempty"`
	Phone        *string   `json:"phone,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Roles       []Role       `json:"roles,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// MarshalJSON includes the derived fullname alongside the stored fields.
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	return json.Marshal(struct {
		plain
		FullName string `json:"fullname"`
	}{plain(u), u.FullName()})
}

// FullName returns the space-joined non-empty first and last names.
func (u *User) FullName() string {
	var parts []string
	if u.FirstName != nil && *u.FirstName != "" {
		parts = append(parts, *u.FirstName)
	}
	if u.LastName != nil && *u.LastName != "" {
		parts = append(parts, *u.LastName)
	}
	return strings.Join(parts, " ")
}

// Role is a named group aggregating permissions. Permissions are populated
// by eager-loading paths.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission is a named capability, granted directly to users or
// transitively via roles.
type Permission struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// UserPatch carries optional fields for a partial user update. Only non-nil
// fields are applied, field by field against an explicit allow-list; there is
// deliberately no reflection-driven mass assignment.
type UserPatch struct {
	Email     *string `json:"email,omitempty"`
	Username  *string `json:"username,omitempty"`
	Password  *string `json:"password,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

// AdminRoleName is the role checked by the legacy role guard.
const AdminRoleName = "admin"

// Baseline administrator permissions gating user management endpoints.
const (
	PermAdminCreate = "administrator.create"
	PermAdminRead   = "administrator.read"
	PermAdminUpdate = "administrator.update"
	PermAdminDelete = "administrator.delete"
)
