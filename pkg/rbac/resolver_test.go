package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/pkg/auth"
	"github.com/gatehouse/gatehouse/pkg/config"
	"github.com/gatehouse/gatehouse/pkg/contextkeys"
	"github.com/gatehouse/gatehouse/pkg/errdefs"
)

func grantUser() *User {
	return &User{
		ID:    1,
		Email: "ada@example.com",
		Permissions: []Permission{
			{ID: 1, Name: "reports.run"},
		},
		Roles: []Role{
			{
				ID:   1,
				Name: "editor",
				Permissions: []Permission{
					{ID: 2, Name: "document.edit"},
					{ID: 3, Name: "document.view"},
				},
			},
			{ID: 2, Name: "viewer", Permissions: []Permission{{ID: 3, Name: "document.view"}}},
		},
	}
}

func TestHasPermissionUnionOfDirectAndRoles(t *testing.T) {
	user := grantUser()

	assert.True(t, HasPermission(user, "reports.run"), "direct grant")
	assert.True(t, HasPermission(user, "document.edit"), "via role")
	assert.True(t, HasPermission(user, "document.view"), "held by two roles")
	assert.False(t, HasPermission(user, "document.delete"))
	assert.False(t, HasPermission(user, "Document.Edit"), "names are case-sensitive")
	assert.False(t, HasPermission(nil, "reports.run"))
}

func TestHasAnyAndAllPermissions(t *testing.T) {
	user := grantUser()

	assert.True(t, HasAnyPermission(user, "nope", "document.edit"))
	assert.False(t, HasAnyPermission(user, "nope", "also.nope"))
	assert.False(t, HasAnyPermission(user), "empty list is never satisfied")

	assert.True(t, HasAllPermissions(user, "reports.run", "document.view"))
	assert.False(t, HasAllPermissions(user, "reports.run", "nope"))
	assert.True(t, HasAllPermissions(user), "empty list is trivially satisfied")
}

func TestHasRoleIsDirectMembershipOnly(t *testing.T) {
	user := grantUser()

	assert.True(t, HasRole(user, "editor"))
	assert.False(t, HasRole(user, "admin"))
	assert.False(t, HasRole(user, "Editor"))
	assert.False(t, HasRole(nil, "editor"))
}

func TestRequirePermissionAndRole(t *testing.T) {
	user := grantUser()

	assert.NoError(t, RequirePermission(user, "document.edit"))
	err := RequirePermission(user, "document.delete")
	require.Error(t, err)
	assert.True(t, errdefs.IsForbidden(err))

	assert.NoError(t, RequireRole(user, "viewer"))
	err = RequireRole(user, "admin")
	require.Error(t, err)
	assert.True(t, errdefs.IsForbidden(err))
}

func TestUserFromContext(t *testing.T) {
	user := grantUser()

	ctx := contextkeys.WithUser(context.Background(), user)
	got, err := UserFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	_, err = UserFromContext(context.Background())
	require.Error(t, err)
	assert.True(t, errdefs.IsUnauthenticated(err))
}

func testResolver(t *testing.T, store *Store, cacheTTL time.Duration) (*Resolver, *auth.TokenService) {
	cfg := config.AuthConfig{
		SigningSecret:     "test-secret",
		TokenTTL:          time.Hour,
		ResolverCacheTTL:  cacheTTL,
		ResolverCacheSize: 16,
	}
	tokens := auth.NewTokenService(cfg)
	return NewResolver(store, tokens, cfg, nil), tokens
}

func TestResolveUserRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	user := mustCreateUser(t, store, "ada@example.com")
	role, err := store.CreateRole(ctx, "editor", nil)
	require.NoError(t, err)
	perm, err := store.CreatePermission(ctx, "document.edit", nil)
	require.NoError(t, err)
	require.NoError(t, store.AssignPermissionToRole(ctx, role.ID, perm.ID))
	require.NoError(t, store.AssignRoleToUser(ctx, user.ID, role.ID))

	resolver, tokens := testResolver(t, store, 0)

	token, err := tokens.Issue(user.ID)
	require.NoError(t, err)

	resolved, err := resolver.ResolveUser(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
	assert.True(t, HasPermission(resolved, "document.edit"))
}

func TestResolveUserBadToken(t *testing.T) {
	db := setupTestDB(t)
	resolver, _ := testResolver(t, NewStore(db), 0)

	_, err := resolver.ResolveUser(context.Background(), "garbage")
	require.Error(t, err)
	assert.True(t, errdefs.IsUnauthenticated(err))
}

func TestResolveUserDeletedUser(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	user := mustCreateUser(t, store, "ada@example.com")
	resolver, tokens := testResolver(t, store, 0)

	token, err := tokens.Issue(user.ID)
	require.NoError(t, err)
	require.NoError(t, store.DeleteUser(ctx, user.ID))

	// A valid token for a vanished user is an authentication failure,
	// not a 404.
	_, err = resolver.ResolveUser(ctx, token)
	require.Error(t, err)
	assert.True(t, errdefs.IsUnauthenticated(err))
	assert.False(t, errdefs.IsNotFound(err))
}

func TestResolveUserDeactivatedUser(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	user := mustCreateUser(t, store, "ada@example.com")
	inactive := false
	_, err := store.UpdateUser(ctx, user.ID, UserPatch{IsActive: &inactive})
	require.NoError(t, err)

	resolver, tokens := testResolver(t, store, 0)
	token, err := tokens.Issue(user.ID)
	require.NoError(t, err)

	_, err = resolver.ResolveUser(ctx, token)
	require.Error(t, err)
	assert.True(t, errdefs.IsUnauthenticated(err))
}

func TestResolverWithoutCacheSeesNewGrantsImmediately(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	user := mustCreateUser(t, store, "ada@example.com")
	perm, err := store.CreatePermission(ctx, "document.edit", nil)
	require.NoError(t, err)

	resolver, tokens := testResolver(t, store, 0)
	token, err := tokens.Issue(user.ID)
	require.NoError(t, err)

	resolved, err := resolver.ResolveUser(ctx, token)
	require.NoError(t, err)
	assert.False(t, HasPermission(resolved, "document.edit"))

	require.NoError(t, store.AssignPermissionToUser(ctx, user.ID, perm.ID))

	resolved, err = resolver.ResolveUser(ctx, token)
	require.NoError(t, err)
	assert.True(t, HasPermission(resolved, "document.edit"))
}

func TestResolverCacheInvalidation(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	user := mustCreateUser(t, store, "ada@example.com")
	perm, err := store.CreatePermission(ctx, "document.edit", nil)
	require.NoError(t, err)

	resolver, tokens := testResolver(t, store, time.Minute)
	token, err := tokens.Issue(user.ID)
	require.NoError(t, err)

	resolved, err := resolver.ResolveUser(ctx, token)
	require.NoError(t, err)
	assert.False(t, HasPermission(resolved, "document.edit"))

	require.NoError(t, store.AssignPermissionToUser(ctx, user.ID, perm.ID))

	// Still the cached grant set.
	resolved, err = resolver.ResolveUser(ctx, token)
	require.NoError(t, err)
	assert.False(t, HasPermission(resolved, "document.edit"))

	resolver.InvalidateUser(user.ID)

	resolved, err = resolver.ResolveUser(ctx, token)
	require.NoError(t, err)
	assert.True(t, HasPermission(resolved, "document.edit"))
}
