// Package api assembles the HTTP surface of the service.
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

// AuthHandlers exposes signup and login. Both routes are unauthenticated.
type AuthHandlers struct {
	store   *rbac.Store
	creds   *auth.CredentialStore
	tokens  *auth.TokenService
	metrics *observability.Metrics
	logger  *logrus.Logger
}

// NewAuthHandlers creates the authentication handlers.
func NewAuthHandlers(store *rbac.Store, creds *auth.CredentialStore, tokens *auth.TokenService, metrics *observability.Metrics, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		store:   store,
		creds:   creds,
		tokens:  tokens,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes registers auth routes on an open router.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/signup", h.Signup).Methods("POST")
	router.HandleFunc("/auth/token", h.Login).Methods("POST")
}

type signupRequest struct {
	Email     string  `json:"email"`
	Username  *string `json:"username,omitempty"`
	Password  string  `json:"password"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        *rbac.User `json:"user"`
}

// Signup handles POST /auth/signup
func (h *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}
	if req.Password == "" {
		httputil.WriteBadRequest(w, "password is required")
		return
	}

	hash, err := h.creds.Hash(req.Password)
	if err != nil {
		h.logger.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w, err)
		return
	}

	user := &rbac.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errdefs.IsConflict(err) {
			httputil.WriteBadRequest(w, "email already registered")
			return
		}
		httputil.WriteDomainError(w, err)
		return
	}

	h.metrics.SignupsTotal.Inc()
	h.logger.WithField("user_id", user.ID).Info("user signed up")
	httputil.WriteCreated(w, user)
}

// Login handles POST /auth/token. Unknown email and wrong password produce
// the identical response so the endpoint cannot be used to probe for
// accounts.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			h.logger.WithError(err).Error("failed to load user for login")
		}
		h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
		httputil.WriteUnauthorized(w, "Invalid credentials")
		return
	}

	if !user.IsActive || !h.creds.Verify(req.Password, user.PasswordHash) {
		h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
		httputil.WriteUnauthorized(w, "Invalid credentials")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.logger.WithError(err).Error("failed to issue token")
		httputil.WriteInternalError(w, err)
		return
	}

	h.metrics.LoginsTotal.WithLabelValues("success").Inc()
	httputil.WriteSuccess(w, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	})
}
