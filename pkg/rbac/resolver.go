package rbac

import (
	"context"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/gatehouse/gatehouse/pkg/auth"
	"github.com/gatehouse/gatehouse/pkg/config"
	"github.com/gatehouse/gatehouse/pkg/contextkeys"
	"github.com/gatehouse/gatehouse/pkg/errdefs"
)

// Resolver turns bearer tokens into fully-loaded users and answers
// permission questions about them.
type Resolver struct {
	store  *Store
	tokens *auth.TokenService
	logger *logrus.Logger

	// cache is nil unless a resolver cache TTL is configured. With caching
	// disabled every request re-reads grants, so a new assignment takes
	// effect on the very next request.
	cache *expirable.LRU[int64, *User]
}

// NewResolver creates a resolver. The cache is only enabled when
// cfg.ResolverCacheTTL is positive.
func NewResolver(store *Store, tokens *auth.TokenService, cfg config.AuthConfig, logger *logrus.Logger) *Resolver {
	r := &Resolver{
		store:  store,
		tokens: tokens,
		logger: logger,
	}
	if cfg.ResolverCacheTTL > 0 {
		size := cfg.ResolverCacheSize
		if size <= 0 {
			size = 1024
		}
		r.cache = expirable.NewLRU[int64, *User](size, nil, cfg.ResolverCacheTTL)
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"ttl":  cfg.ResolverCacheTTL,
				"size": size,
			}).Info("resolver cache enabled, grant changes may lag by up to the TTL")
		}
	}
	return r
}

// ResolveUser validates a session token and returns the referenced user with
// roles and permissions eagerly loaded. Any token failure, a missing user,
// and a deactivated user all resolve to an unauthenticated error.
func (r *Resolver) ResolveUser(ctx context.Context, token string) (*User, error) {
	userID, err := r.tokens.Decode(token)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if user, ok := r.cache.Get(userID); ok {
			return user, nil
		}
	}

	user, err := r.store.GetUserWithGrants(ctx, userID)
	if errdefs.IsNotFound(err) {
		// A valid token for a deleted user must not leak existence.
		return nil, errdefs.Unauthenticated("user %d no longer exists", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	if !user.IsActive {
		return nil, errdefs.Unauthenticated("user %d is deactivated", userID)
	}

	if r.cache != nil {
		r.cache.Add(userID, user)
	}
	return user, nil
}

// InvalidateUser drops a user's cached grant set. Called after any mutation
// that changes who the user is or what they may do.
func (r *Resolver) InvalidateUser(userID int64) {
	if r.cache != nil {
		r.cache.Remove(userID)
	}
}

// HasPermission reports whether the user holds the named permission, either
// directly or through any role. Names match exactly and case-sensitively.
func HasPermission(user *User, name string) bool {
	if user == nil {
		return false
	}
	for _, p := range user.Permissions {
		if p.Name == name {
			return true
		}
	}
	for _, role := range user.Roles {
		for _, p := range role.Permissions {
			if p.Name == name {
				return true
			}
		}
	}
	return false
}

// HasAnyPermission reports whether the user holds at least one of the named
// permissions. An empty list is never satisfied.
func HasAnyPermission(user *User, names ...string) bool {
	for _, name := range names {
		if HasPermission(user, name) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the user holds every named permission.
// An empty list is trivially satisfied.
func HasAllPermissions(user *User, names ...string) bool {
	for _, name := range names {
		if !HasPermission(user, name) {
			return false
		}
	}
	return true
}

// HasRole reports whether the user directly holds the named role. Role
// membership is not transitive through permissions.
func HasRole(user *User, name string) bool {
	if user == nil {
		return false
	}
	for _, role := range user.Roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

// RequirePermission returns a forbidden error unless the user holds the
// named permission. The caller is responsible for having authenticated the
// user first.
func RequirePermission(user *User, name string) error {
	if !HasPermission(user, name) {
		return errdefs.Forbidden("missing permission %q", name)
	}
	return nil
}

// RequireRole returns a forbidden error unless the user directly holds the
// named role.
func RequireRole(user *User, name string) error {
	if !HasRole(user, name) {
		return errdefs.Forbidden("missing role %q", name)
	}
	return nil
}

// UserFromContext returns the authenticated user stored by the auth
// middleware, or an unauthenticated error when the request carried none.
func UserFromContext(ctx context.Context) (*User, error) {
	user, ok := ctx.Value(contextkeys.UserKey).(*User)
	if !ok || user == nil {
		return nil, errdefs.Unauthenticated("no authenticated user in request context")
	}
	return user, nil
}
