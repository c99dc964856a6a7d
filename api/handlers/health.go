package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/wifilab/perfdash/api/config"
)

// HealthResponse reports store connectivity.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// GetHealth pings the store and reports ok or error. A failed ping is the
// only way this endpoint fails.
func GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	if err := config.DB.Ping(ctx); err != nil {
		log.Printf("Health check failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "error", Message: "Database connection failed"})
		return
	}

	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}
