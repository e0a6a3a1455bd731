package files

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/gatehouse/gatehouse/pkg/errdefs"
	"github.com/gatehouse/gatehouse/pkg/httputil"
	"github.com/gatehouse/gatehouse/pkg/observability"
	"github.com/gatehouse/gatehouse/pkg/rbac"
)

// Handlers exposes the file endpoints. All routes require authentication.
type Handlers struct {
	service *Service
	metrics *observability.Metrics
	logger  *logrus.Logger
}

// NewHandlers creates the file handlers.
func NewHandlers(service *Service, metrics *observability.Metrics, logger *logrus.Logger) *Handlers {
	return &Handlers{service: service, metrics: metrics, logger: logger}
}

// RegisterRoutes registers file routes on an authenticated router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/files/upload", h.Upload).Methods("POST")
	router.HandleFunc("/files/", h.List).Methods("GET")
	router.HandleFunc("/files/{file_id}", h.Download).Methods("GET")
	router.HandleFunc("/files/{file_id}", h.Update).Methods("PATCH")
	router.HandleFunc("/files/{file_id}", h.Delete).Methods("DELETE")
}

// Upload handles POST /files/upload. The file arrives as the multipart
// field "file"; access_level and required_permission come from the query
// string.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	user, err := rbac.UserFromContext(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "multipart field \"file\" is required")
		return
	}
	defer part.Close()

	req := UploadRequest{
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		Size:             header.Size,
		AccessLevel:      AccessLevel(httputil.ParseQueryString(r, "access_level", string(AccessPrivate))),
		Body:             part,
	}
	if rp := r.URL.Query().Get("required_permission"); rp != "" {
		req.RequiredPermission = &rp
	}

	file, err := h.service.Upload(r.Context(), user, req)
	if err != nil {
		if h.metrics != nil {
			h.metrics.FileUploadsTotal.WithLabelValues("rejected").Inc()
		}
		httputil.WriteDomainError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.FileUploadsTotal.WithLabelValues("success").Inc()
		h.metrics.FileUploadBytes.Add(float64(file.FileSize))
	}
	w.Header().Set("Location", file.DownloadURL())
	httputil.WriteCreated(w, file)
}

// List handles GET /files/
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	user, err := rbac.UserFromContext(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	page := httputil.ParsePagination(r)
	items, total, err := h.service.List(r.Context(), user, page.PageSize, page.Offset())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if items == nil {
		items = []File{}
	}
	httputil.WriteSuccess(w, httputil.NewPaginatedResponse(items, total, page))
}

// Download handles GET /files/{file_id}
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	user, err := rbac.UserFromContext(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	fileID, ok := httputil.ParsePathInt64OrError(w, r, "file_id")
	if !ok {
		return
	}

	file, body, err := h.service.Download(r.Context(), user, fileID)
	if err != nil {
		h.countDownload(downloadOutcome(err))
		httputil.WriteDomainError(w, err)
		return
	}
	defer body.Close()
	h.countDownload("success")

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", file.OriginalFilename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", file.FileSize))

	if _, err := io.Copy(w, body); err != nil {
		// Headers are gone, nothing to do but log.
		h.logger.WithError(err).WithField("file_id", fileID).Warn("download interrupted")
	}
}

func (h *Handlers) countDownload(outcome string) {
	if h.metrics != nil {
		h.metrics.FileDownloadsTotal.WithLabelValues(outcome).Inc()
	}
}

func downloadOutcome(err error) string {
	switch {
	case errdefs.IsForbidden(err):
		return "denied"
	case errdefs.IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}

// Update handles PATCH /files/{file_id}
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	user, err := rbac.UserFromContext(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	fileID, ok := httputil.ParsePathInt64OrError(w, r, "file_id")
	if !ok {
		return
	}

	var patch FilePatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	file, err := h.service.Update(r.Context(), user, fileID, patch)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, file)
}

// Delete handles DELETE /files/{file_id}
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := rbac.UserFromContext(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	fileID, ok := httputil.ParsePathInt64OrError(w, r, "file_id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), user, fileID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
