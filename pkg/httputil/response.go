// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/gatehouse/gatehouse/pkg/errdefs"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFoundError writes a not found error response (404 Not Found)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteInternalError writes an internal server error response without leaking
// internals to the caller.
func WriteInternalError(w http.ResponseWriter, err error) {
	_ = err
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// WriteDomainError maps a taxonomy error from pkg/errdefs to its HTTP status.
// Conflicts surface as 400, matching the upstream API contract for duplicate
// emails and role/permission names. Unclassified errors become an opaque 500.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errdefs.IsUnauthenticated(err):
		WriteUnauthorized(w, err.Error())
	case errdefs.IsForbidden(err):
		WriteForbidden(w, err.Error())
	case errdefs.IsNotFound(err):
		WriteNotFoundError(w, err.Error())
	case errdefs.IsConflict(err):
		WriteBadRequest(w, err.Error())
	case errdefs.IsValidation(err):
		WriteBadRequest(w, err.Error())
	case errdefs.IsStorage(err):
		WriteErrorMessage(w, http.StatusServiceUnavailable, err.Error())
	default:
		WriteInternalError(w, err)
	}
}
