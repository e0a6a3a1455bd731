package rbac

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gatehouse/gatehouse/pkg/auth"
	"github.com/gatehouse/gatehouse/pkg/config"
	"github.com/gatehouse/gatehouse/pkg/errdefs"
)

func strPtr(s string) *string { return &s }

// Provision seeds the baseline access graph and the bootstrap administrator.
// Every step is idempotent, so it runs unconditionally at startup.
func Provision(ctx context.Context, store *Store, creds *auth.CredentialStore, cfg config.AdminSeedConfig, logger *logrus.Logger) error {
	permissions := []struct {
		name        string
		description string
	}{
		{PermAdminCreate, "Create users, roles, and permissions"},
		{PermAdminRead, "List and read any user"},
		{PermAdminUpdate, "Update any user and manage grants"},
		{PermAdminDelete, "Delete any user"},
	}

	permIDs := make(map[string]int64, len(permissions))
	for _, p := range permissions {
		perm, err := store.GetPermissionByName(ctx, p.name)
		if errdefs.IsNotFound(err) {
			perm, err = store.CreatePermission(ctx, p.name, strPtr(p.description))
			if errdefs.IsConflict(err) {
				// Raced with another instance; re-read.
				perm, err = store.GetPermissionByName(ctx, p.name)
			}
		}
		if err != nil {
			return fmt.Errorf("failed to provision permission %s: %w", p.name, err)
		}
		permIDs[p.name] = perm.ID
	}

	role, err := store.GetRoleByName(ctx, AdminRoleName)
	if errdefs.IsNotFound(err) {
		role, err = store.CreateRole(ctx, AdminRoleName, strPtr("Full administrative access"))
		if errdefs.IsConflict(err) {
			role, err = store.GetRoleByName(ctx, AdminRoleName)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to provision admin role: %w", err)
	}

	for name, permID := range permIDs {
		if err := store.AssignPermissionToRole(ctx, role.ID, permID); err != nil {
			return fmt.Errorf("failed to grant %s to admin role: %w", name, err)
		}
	}

	admin, err := store.GetUserByEmail(ctx, cfg.Email)
	if errdefs.IsNotFound(err) {
		hash, hashErr := creds.Hash(cfg.Password)
		if hashErr != nil {
			return fmt.Errorf("failed to hash admin password: %w", hashErr)
		}
		admin = &User{
			Email:        cfg.Email,
			Username:     strPtr(cfg.Username),
			PasswordHash: hash,
		}
		err = store.CreateUser(ctx, admin)
		if errdefs.IsConflict(err) {
			admin, err = store.GetUserByEmail(ctx, cfg.Email)
		} else if err == nil {
			logger.WithField("email", cfg.Email).Warn("created bootstrap admin account, change its password")
		}
	}
	if err != nil {
		return fmt.Errorf("failed to provision admin user: %w", err)
	}

	if err := store.AssignRoleToUser(ctx, admin.ID, role.ID); err != nil {
		return fmt.Errorf("failed to grant admin role to %s: %w", cfg.Email, err)
	}

	return nil
}
