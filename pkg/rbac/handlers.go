package rbac

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/gatehouse/gatehouse/pkg/httputil"
	"github.com/gatehouse/gatehouse/pkg/observability"
)

// Handlers exposes role and permission management endpoints.
type Handlers struct {
	store    *Store
	resolver *Resolver
	metrics  *observability.Metrics
	logger   *logrus.Logger
}

// NewHandlers creates the role and permission handlers.
func NewHandlers(store *Store, resolver *Resolver, metrics *observability.Metrics, logger *logrus.Logger) *Handlers {
	return &Handlers{
		store:    store,
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
	}
}

// RegisterRoutes registers role and permission routes. The list endpoints
// are registered on the open router with no guard at all, matching the
// documented gap described in DESIGN.md; mutations go on the authenticated
// router behind permission guards.
func (h *Handlers) RegisterRoutes(open, protected *mux.Router) {
	create := RequirePermissionMiddleware(PermAdminCreate, h.metrics)
	update := RequirePermissionMiddleware(PermAdminUpdate, h.metrics)

	open.HandleFunc("/roles/", h.ListRoles).Methods("GET")
	open.HandleFunc("/permissions/", h.ListPermissions).Methods("GET")

	protected.Handle("/roles/", create(http.HandlerFunc(h.CreateRole))).Methods("POST")
	protected.Handle("/roles/{role_id}/assign/{user_id}", update(http.HandlerFunc(h.AssignRoleToUser))).Methods("POST")

	protected.Handle("/permissions/", create(http.HandlerFunc(h.CreatePermission))).Methods("POST")
	protected.Handle("/permissions/role/{role_id}/assign/{permission_id}", update(http.HandlerFunc(h.AssignPermissionToRole))).Methods("POST")
	protected.Handle("/permissions/user/{user_id}/assign/{permission_id}", update(http.HandlerFunc(h.AssignPermissionToUser))).Methods("POST")
}

type createNamedRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// CreateRole handles POST /roles/
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req createNamedRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "role name is required")
		return
	}

	role, err := h.store.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.logger.WithField("role", role.Name).Info("role created")
	httputil.WriteCreated(w, role)
}

// ListRoles handles GET /roles/
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	page := httputil.ParsePagination(r)

	roles, total, err := h.store.ListRoles(r.Context(), page.PageSize, page.Offset())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httputil.WriteSuccess(w, httputil.NewPaginatedResponse(roles, total, page))
}

// AssignRoleToUser handles POST /roles/{role_id}/assign/{user_id}
func (h *Handlers) AssignRoleToUser(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.store.AssignRoleToUser(r.Context(), userID, roleID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.resolver.InvalidateUser(userID)
	h.logger.WithFields(logrus.Fields{
		"role_id": roleID,
		"user_id": userID,
	}).Info("role assigned to user")
	httputil.WriteSuccess(w, map[string]string{"message": "role assigned"})
}

// CreatePermission handles POST /permissions/
func (h *Handlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createNamedRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "permission name is required")
		return
	}

	perm, err := h.store.CreatePermission(r.Context(), req.Name, req.Description)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.logger.WithField("permission", perm.Name).Info("permission created")
	httputil.WriteCreated(w, perm)
}

// ListPermissions handles GET /permissions/
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	page := httputil.ParsePagination(r)

	perms, total, err := h.store.ListPermissions(r.Context(), page.PageSize, page.Offset())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httputil.WriteSuccess(w, httputil.NewPaginatedResponse(perms, total, page))
}

// AssignPermissionToRole handles POST /permissions/role/{role_id}/assign/{permission_id}
func (h *Handlers) AssignPermissionToRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}
	permissionID, ok := httputil.ParsePathInt64OrError(w, r, "permission_id")
	if !ok {
		return
	}

	if err := h.store.AssignPermissionToRole(r.Context(), roleID, permissionID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"role_id":       roleID,
		"permission_id": permissionID,
	}).Info("permission assigned to role")
	httputil.WriteSuccess(w, map[string]string{"message": "permission assigned to role"})
}

// AssignPermissionToUser handles POST /permissions/user/{user_id}/assign/{permission_id}
func (h *Handlers) AssignPermissionToUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	permissionID, ok := httputil.ParsePathInt64OrError(w, r, "permission_id")
	if !ok {
		return
	}

	if err := h.store.AssignPermissionToUser(r.Context(), userID, permissionID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.resolver.InvalidateUser(userID)
	h.logger.WithFields(logrus.Fields{
		"user_id":       userID,
		"permission_id": permissionID,
	}).Info("permission assigned to user")
	httputil.WriteSuccess(w, map[string]string{"message": "permission assigned to user"})
}
