package rbac

import (
	"net/http"

	"github.com/gatehouse/gatehouse/pkg/httputil"
	"github.com/gatehouse/gatehouse/pkg/observability"
)

// RequirePermissionMiddleware rejects requests whose authenticated user does
// not hold the named permission. It must run after the auth middleware;
// requests with no user fail as unauthenticated, never forbidden. Each
// decision is counted as allowed or denied when metrics are supplied.
func RequirePermissionMiddleware(permission string, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r.Context())
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			if err := RequirePermission(user, permission); err != nil {
				if metrics != nil {
					metrics.PermissionChecksTotal.WithLabelValues("denied").Inc()
				}
				httputil.WriteDomainError(w, err)
				return
			}
			if metrics != nil {
				metrics.PermissionChecksTotal.WithLabelValues("allowed").Inc()
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoleMiddleware rejects requests whose authenticated user does not
// directly hold the named role.
func RequireRoleMiddleware(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r.Context())
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			if err := RequireRole(user, role); err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
