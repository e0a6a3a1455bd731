package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/pkg/auth"
	"github.com/gatehouse/gatehouse/pkg/config"
	"github.com/gatehouse/gatehouse/pkg/files"
	"github.com/gatehouse/gatehouse/pkg/observability"
	"github.com/gatehouse/gatehouse/pkg/rbac"
)

type testAPI struct {
	router  http.Handler
	db      *sql.DB
	store   *rbac.Store
	tokens  *auth.TokenService
	creds   *auth.CredentialStore
	metrics *observability.Metrics
}

func setupAPI(t *testing.T) *testAPI {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			username TEXT UNIQUE,
			password_hash TEXT NOT NULL,
			first_name TEXT,
			last_name TEXT,
			phone TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE TABLE roles (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE, description TEXT);
		CREATE TABLE permissions (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE, description TEXT);
		CREATE TABLE user_roles (user_id INTEGER, role_id INTEGER, PRIMARY KEY (user_id, role_id));
		CREATE TABLE user_permissions (user_id INTEGER, permission_id INTEGER, PRIMARY KEY (user_id, permission_id));
		CREATE TABLE role_permissions (role_id INTEGER, permission_id INTEGER, PRIMARY KEY (role_id, permission_id));
		CREATE TABLE files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			original_filename TEXT NOT NULL,
			file_path TEXT NOT NULL UNIQUE,
			file_size INTEGER NOT NULL,
			content_type TEXT NOT NULL,
			file_extension TEXT,
			access_level TEXT NOT NULL DEFAULT 'private',
			required_permission TEXT,
			owner_id INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			download_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	authCfg := config.AuthConfig{
		SigningSecret: "test-secret",
		TokenTTL:      time.Hour,
		BcryptCost:    4,
	}
	creds := auth.NewCredentialStore(authCfg, nil)
	tokens := auth.NewTokenService(authCfg)

	store := rbac.NewStore(db)
	resolver := rbac.NewResolver(store, tokens, authCfg, nil)

	require.NoError(t, rbac.Provision(context.Background(), store, creds, config.AdminSeedConfig{
		Email:    "admin@example.com",
		Username: "admin",
		Password: "admin123",
	}, logger))

	storageRoot := t.TempDir()
	objects, err := files.NewObjectStore(storageRoot)
	require.NoError(t, err)
	fileService := files.NewService(files.NewStore(db), objects, 1<<20, nil, logger)

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	router := NewRouter(Deps{
		Store:       store,
		FileService: fileService,
		Creds:       creds,
		Tokens:      tokens,
		Resolver:    resolver,
		Metrics:     metrics,
		Logger:      logger,
		StorageRoot: storageRoot,
		CORSOrigins: []string{"https://app.example.com"},
	})

	return &testAPI{
		router:  router,
		db:      db,
		store:   store,
		tokens:  tokens,
		creds:   creds,
		metrics: metrics,
	}
}

func TestCORSPreflight(t *testing.T) {
	api := setupAPI(t)

	req := httptest.NewRequest("OPTIONS", "/api/v1/roles/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSUnlistedOriginGetsNoHeaders(t *testing.T) {
	api := setupAPI(t)

	req := httptest.NewRequest("GET", "/api/v1/roles/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) upload(t *testing.T, token, filename, content, query string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/v1/files/upload"+query, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

// adminToken logs in as the provisioned admin.
func (a *testAPI) adminToken(t *testing.T) string {
	t.Helper()
	rec := a.do(t, "POST", "/api/v1/auth/token", "", map[string]string{
		"email":    "admin@example.com",
		"password": "admin123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, rec, &resp)
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

// signupAndLogin creates a plain user and returns its id and token.
func (a *testAPI) signupAndLogin(t *testing.T, email, password string) (int64, string) {
	t.Helper()
	rec := a.do(t, "POST", "/api/v1/auth/signup", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, rec, &created)

	rec = a.do(t, "POST", "/api/v1/auth/token", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, rec, &resp)
	return created.ID, resp.AccessToken
}
