package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorResponse is the JSON error envelope for both client and server errors.
type errorResponse struct {
	Error string `json:"error"`
}

// writeClientError reports a request validation failure with a specific,
// human-readable message.
func writeClientError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// writeInternalError logs the full error server-side and returns a generic
// message. Query text, hostnames, and driver details never reach the client.
func writeInternalError(w http.ResponseWriter, operation string, err error) {
	slog.Error(operation, "error", err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: "Internal server error"})
}
