package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadAndDownloadMetrics(t *testing.T) {
	api := setupAPI(t)
	_, alice := api.signupAndLogin(t, "alice@x.com", "pw1")
	_, bob := api.signupAndLogin(t, "bob@x.com", "pw1")

	rec := api.upload(t, alice, "notes.txt", "twelve bytes", "?access_level=private")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var file struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, rec, &file)

	assert.Equal(t, float64(1), testutil.ToFloat64(api.metrics.FileUploadsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(len("twelve bytes")), testutil.ToFloat64(api.metrics.FileUploadBytes))

	// A rejected upload counts separately and adds no bytes.
	rec = api.upload(t, alice, "bad.txt", "x", "?access_level=secret")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(api.metrics.FileUploadsTotal.WithLabelValues("rejected")))
	assert.Equal(t, float64(len("twelve bytes")), testutil.ToFloat64(api.metrics.FileUploadBytes))

	rec = api.do(t, "GET", fmt.Sprintf("/api/v1/files/%d", file.ID), bob, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(api.metrics.FileDownloadsTotal.WithLabelValues("denied")))

	rec = api.do(t, "GET", fmt.Sprintf("/api/v1/files/%d", file.ID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(api.metrics.FileDownloadsTotal.WithLabelValues("success")))

	rec = api.do(t, "GET", "/api/v1/files/9999", alice, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(api.metrics.FileDownloadsTotal.WithLabelValues("not_found")))
}

func TestPermissionCheckMetrics(t *testing.T) {
	api := setupAPI(t)
	admin := api.adminToken(t)
	_, user := api.signupAndLogin(t, "bob@x.com", "pw1")

	rec := api.do(t, "GET", "/api/v1/users/", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(api.metrics.PermissionChecksTotal.WithLabelValues("allowed")))

	rec = api.do(t, "GET", "/api/v1/users/", user, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(api.metrics.PermissionChecksTotal.WithLabelValues("denied")))
}

func TestRejectedTokenMetric(t *testing.T) {
	api := setupAPI(t)

	req := httptest.NewRequest("GET", "/api/v1/users/profile/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(api.metrics.TokenDecodesFailed))
}
