package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/gatehouse/gatehouse/pkg/auth"
	"github.com/gatehouse/gatehouse/pkg/errdefs"
	"github.com/gatehouse/gatehouse/pkg/httputil"
	"github.com/gatehouse/gatehouse/pkg/observability"
	"github.com/gatehouse/gatehouse/pkg/rbac"
)

// UserHandlers exposes user administration and self-service profile
// endpoints.
type UserHandlers struct {
	store    *rbac.Store
	creds    *auth.CredentialStore
	resolver *rbac.Resolver
	metrics  *observability.Metrics
	logger   *logrus.Logger
}

// NewUserHandlers creates the user handlers.
func NewUserHandlers(store *rbac.Store, creds *auth.CredentialStore, resolver *rbac.Resolver, metrics *observability.Metrics, logger *logrus.Logger) *UserHandlers {
	return &UserHandlers{
		store:    store,
		creds:    creds,
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
	}
}

// RegisterRoutes registers user routes on an authenticated router. The
// profile routes must be registered before the {user_id} routes so
// "profile" is not parsed as an id.
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	read := rbac.RequirePermissionMiddleware(rbac.PermAdminRead, h.metrics)
	update := rbac.RequirePermissionMiddleware(rbac.PermAdminUpdate, h.metrics)
	del := rbac.RequirePermissionMiddleware(rbac.PermAdminDelete, h.metrics)

	router.HandleFunc("/users/profile/", h.Profile).Methods("GET")
	router.HandleFunc("/users/profile/password", h.ChangePassword).Methods("PUT")

	router.Handle("/users/", read(http.HandlerFunc(h.List))).Methods("GET")
	router.Handle("/users/{user_id}", read(http.HandlerFunc(h.Get))).Methods("GET")
	router.Handle("/users/{user_id}", update(http.HandlerFunc(h.Update))).Methods("PUT")
	router.Handle("/users/{user_id}", del(http.HandlerFunc(h.Delete))).Methods("DELETE")
}

// List handles GET /users/
func (h *UserHandlers) List(w http.ResponseWriter, r *http.Request) {
	page := httputil.ParsePagination(r)

	users, total, err := h.store.ListUsers(r.Context(), page.PageSize, page.Offset())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if users == nil {
		users = []rbac.User{}
	}
	httputil.WriteSuccess(w, httputil.NewPaginatedResponse(users, total, page))
}

// Get handles GET /users/{user_id}
func (h *UserHandlers) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	user, err := h.store.GetUserWithGrants(r.Context(), userID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// Update handles PUT /users/{user_id}. A password in the patch is rehashed
// before it is stored.
func (h *UserHandlers) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var patch rbac.UserPatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	if patch.Password != nil {
		hash, err := h.creds.Hash(*patch.Password)
		if err != nil {
			h.logger.WithError(err).Error("failed to hash password")
			httputil.WriteInternalError(w, err)
			return
		}
		patch.Password = &hash
	}

	user, err := h.store.UpdateUser(r.Context(), userID, patch)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.resolver.InvalidateUser(userID)
	httputil.WriteSuccess(w, user)
}

// Delete handles DELETE /users/{user_id}. Owned files are intentionally not
// cascaded; see DESIGN.md.
func (h *UserHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.store.DeleteUser(r.Context(), userID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.resolver.InvalidateUser(userID)
	h.logger.WithField("user_id", userID).Info("user deleted")
	httputil.WriteNoContent(w)
}

// Profile handles GET /users/profile/
func (h *UserHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := rbac.UserFromContext(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword handles PUT /users/profile/password. The caller must
// present their current password.
func (h *UserHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := rbac.UserFromContext(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	var req changePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.NewPassword == "" {
		httputil.WriteBadRequest(w, "new password is required")
		return
	}

	if !h.creds.Verify(req.OldPassword, user.PasswordHash) {
		httputil.WriteDomainError(w, errdefs.Validation("old password is incorrect"))
		return
	}

	hash, err := h.creds.Hash(req.NewPassword)
	if err != nil {
		h.logger.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w, err)
		return
	}

	if err := h.store.UpdatePassword(r.Context(), user.ID, hash); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.resolver.InvalidateUser(user.ID)
	h.logger.WithField("user_id", user.ID).Info("password changed")
	httputil.WriteSuccess(w, map[string]string{"message": "password updated"})
}
