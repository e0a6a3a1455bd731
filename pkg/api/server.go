package api

import (
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/gatehouse/gatehouse/pkg/auth"
	"github.com/gatehouse/gatehouse/pkg/files"
	"github.com/gatehouse/gatehouse/pkg/httputil"
	"github.com/gatehouse/gatehouse/pkg/middleware"
	"github.com/gatehouse/gatehouse/pkg/observability"
	"github.com/gatehouse/gatehouse/pkg/rbac"
)

// Deps carries everything the router needs, constructed once in main.
type Deps struct {
	Store       *rbac.Store
	FileService *files.Service
	Creds       *auth.CredentialStore
	Tokens      *auth.TokenService
	Resolver    *rbac.Resolver
	Metrics     *observability.Metrics
	Logger      *logrus.Logger

	// StorageRoot, when set, serves the public storage partition as static
	// files under /storage/public/. The private partition is never mounted.
	StorageRoot string

	// CORSOrigins, when non-empty, enables cross-origin handling for the
	// listed origins ("*" allows any).
	CORSOrigins []string
}

// NewRouter builds the full API handler under /api/v1. Routes split into an
// open subrouter (signup, login, and the unguarded role/permission lists)
// and an authenticated subrouter carrying everything else. The CORS layer
// wraps the router so preflight requests are answered even for paths with
// no OPTIONS route.
func NewRouter(deps Deps) http.Handler {
	root := mux.NewRouter()
	root.Use(httputil.RequestIDMiddleware)
	root.Use(httputil.RecoveryMiddleware(deps.Logger))
	root.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	root.Use(httputil.LoggingMiddleware(deps.Logger))

	v1 := root.PathPrefix("/api/v1").Subrouter()

	open := v1.NewRoute().Subrouter()

	authn := middleware.NewAuthenticator(deps.Resolver, deps.Metrics, deps.Logger)
	protected := v1.NewRoute().Subrouter()
	protected.Use(authn.Middleware)

	NewAuthHandlers(deps.Store, deps.Creds, deps.Tokens, deps.Metrics, deps.Logger).RegisterRoutes(open)
	NewUserHandlers(deps.Store, deps.Creds, deps.Resolver, deps.Metrics, deps.Logger).RegisterRoutes(protected)
	rbac.NewHandlers(deps.Store, deps.Resolver, deps.Metrics, deps.Logger).RegisterRoutes(open, protected)
	files.NewHandlers(deps.FileService, deps.Metrics, deps.Logger).RegisterRoutes(protected)

	if deps.StorageRoot != "" {
		publicDir := http.Dir(filepath.Join(deps.StorageRoot, "public"))
		root.PathPrefix("/storage/public/").Handler(
			http.StripPrefix("/storage/public/", http.FileServer(publicDir)))
	}

	if len(deps.CORSOrigins) > 0 {
		return httputil.CORSMiddleware(deps.CORSOrigins)(root)
	}
	return root
}
