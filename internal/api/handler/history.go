package handler

import (
	"net/http"

	"github.com/smarttraffic/console/internal/api/models"
	"github.com/smarttraffic/console/internal/api/response"
)

// HistoryHandler serves the vehicle-count history window.
type HistoryHandler struct {
	traffic Traffic
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(t Traffic) *HistoryHandler {
	return &HistoryHandler{traffic: t}
}

// GetHistory handles GET /v1/history - the window, oldest first.
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	points := h.traffic.History()
	response.JSON(w, r, http.StatusOK, models.HistoryWindow{Capacity: len(points), Points: points})
}

// GetSeries handles GET /v1/history/series - one series per intersection
// label plus the total.
func (h *HistoryHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.SeriesResponse{
		Series: h.traffic.Series(),
		Total:  h.traffic.Total(),
	})
}
