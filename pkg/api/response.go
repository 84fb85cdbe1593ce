package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/juju/errors"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := mapError(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, errors.NotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errors.NotValid):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
