// Package middleware provides the authentication middleware bridging bearer
// tokens to the request context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gatehouse/gatehouse/pkg/contextkeys"
	"github.com/gatehouse/gatehouse/pkg/errdefs"
	"github.com/gatehouse/gatehouse/pkg/httputil"
	"github.com/gatehouse/gatehouse/pkg/observability"
	"github.com/gatehouse/gatehouse/pkg/rbac"
)

// Authenticator resolves bearer tokens and stores the user in the request
// context for downstream guards and handlers.
type Authenticator struct {
	resolver *rbac.Resolver
	metrics  *observability.Metrics
	logger   *logrus.Logger
}

// NewAuthenticator creates the authentication middleware.
func NewAuthenticator(resolver *rbac.Resolver, metrics *observability.Metrics, logger *logrus.Logger) *Authenticator {
	return &Authenticator{resolver: resolver, metrics: metrics, logger: logger}
}

// bearerToken extracts the token from an Authorization header. The scheme
// comparison is case-insensitive per RFC 7235.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errdefs.Unauthenticated("missing Authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errdefs.Unauthenticated("Authorization header is not a bearer token")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errdefs.Unauthenticated("empty bearer token")
	}
	return token, nil
}

// Middleware authenticates the request and rejects it when no valid identity
// can be established. Routes behind this middleware always see a user in
// context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			httputil.WriteDomainError(w, err)
			return
		}

		user, err := a.resolver.ResolveUser(r.Context(), token)
		if err != nil {
			if errdefs.IsUnauthenticated(err) {
				if a.metrics != nil {
					a.metrics.TokenDecodesFailed.Inc()
				}
			} else {
				a.logger.WithError(err).Error("failed to resolve user")
			}
			httputil.WriteDomainError(w, err)
			return
		}

		ctx := contextkeys.WithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
