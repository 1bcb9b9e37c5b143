// Package api provides standardized helper functions for HTTP API responses.
package api

import (
	"encoding/json"
	"net/http"

	appErrors "strivesync-backend/pkg/errors"
)

// ErrorResponse is a standardized error message for API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// MessageResponse carries a human readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// Success sends a standardized successful HTTP response with optional JSON data.
func Success(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Error sends a standardized error response with consistent JSON format.
func Error(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// FromError writes err using the status and type carried by an AppError.
// Internal errors never leak their message.
func FromError(w http.ResponseWriter, err error) {
	status := appErrors.HTTPStatus(err)
	appErr := appErrors.GetAppError(err)
	if appErr == nil || status >= http.StatusInternalServerError && !appErrors.IsUnavailable(err) {
		Error(w, http.StatusInternalServerError, "An internal error occurred")
		return
	}

	message := appErr.Message
	if appErrors.IsUnavailable(err) {
		message = "Service temporarily unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: string(appErr.Type)})
}
