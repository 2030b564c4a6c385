package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/snappic/server/internal/models"
)

// PhotoCounter reports how many photos are listed
type PhotoCounter interface {
	Count(ctx context.Context) (int, error)
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	photos PhotoCounter
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(photos PhotoCounter) *HealthHandler {
	return &HealthHandler{photos: photos}
}

// HealthCheck returns the server health status
// @Summary Health check
// @Description Returns the current health status of the server
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse "Server is healthy"
// @Failure 503 {object} models.HealthResponse "Database unavailable"
// @Router /api/health [get]
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	}

	count, err := h.photos.Count(r.Context())
	if err != nil {
		response.Status = "degraded"
		respondJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	response.Photos = count

	respondJSON(w, http.StatusOK, response)
}
