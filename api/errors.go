package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/c360studio/semplan/catalog"
	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/generation"
	"github.com/c360studio/semplan/orchestrator"
	"github.com/c360studio/semplan/storage"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// classify maps a service error to a status code and error code.
func classify(err error) (int, string) {
	switch {
	case catalog.IsUnknownComponent(err):
		return http.StatusNotFound, "unknown_component"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case document.IsValidation(err):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, storage.ErrVersionExists):
		return http.StatusConflict, "version_exists"
	case errors.Is(err, storage.ErrProfileExists):
		return http.StatusConflict, "profile_exists"
	case orchestrator.IsFoundationFailed(err):
		return http.StatusBadGateway, "foundation_failed"
	case generation.IsExhausted(err):
		return http.StatusBadGateway, "generation_exhausted"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	writeError(w, status, code, err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
