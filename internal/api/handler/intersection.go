package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smarttraffic/console/internal/api/models"
	"github.com/smarttraffic/console/internal/api/response"
	"github.com/smarttraffic/console/internal/traffic"
)

// IntersectionHandler handles intersection reads and operator commands.
type IntersectionHandler struct {
	traffic Traffic
}

// NewIntersectionHandler creates a new IntersectionHandler.
func NewIntersectionHandler(t Traffic) *IntersectionHandler {
	return &IntersectionHandler{traffic: t}
}

// ListIntersections handles GET /v1/intersections.
func (h *IntersectionHandler) ListIntersections(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.IntersectionList{Items: h.traffic.Intersections()})
}

// GetIntersection handles GET /v1/intersections/{id}.
func (h *IntersectionHandler) GetIntersection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	in, ok := h.traffic.Intersection(id)
	if !ok {
		response.NotFound(w, r, "intersection "+id+" not found")
		return
	}
	response.JSON(w, r, http.StatusOK, in)
}

// SetSignal handles POST /v1/intersections/{id}/signal. The response carries
// the intersection as patched after the backend acknowledged.
func (h *IntersectionHandler) SetSignal(w http.ResponseWriter, r *http.Request) {
	var input models.SignalInput
	if err := decodeJSON(r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	status, err := traffic.ParseSignalStatus(input.Status)
	if err != nil {
		response.BadRequest(w, r, "invalid signal status", []models.FieldError{
			{Field: "status", Message: "must be red, yellow or green", Code: "INVALID"},
		})
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.traffic.SetSignal(r.Context(), id, status); err != nil {
		writeTrafficError(w, r, err)
		return
	}
	h.respondIntersection(w, r, id)
}

// SetAutoMode handles POST /v1/intersections/{id}/auto-mode.
func (h *IntersectionHandler) SetAutoMode(w http.ResponseWriter, r *http.Request) {
	var input models.AutoModeInput
	if err := decodeJSON(r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Enabled == nil {
		response.BadRequest(w, r, "enabled is required", []models.FieldError{
			{Field: "enabled", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.traffic.SetAutoMode(r.Context(), id, *input.Enabled); err != nil {
		writeTrafficError(w, r, err)
		return
	}
	h.respondIntersection(w, r, id)
}

// CheckViolations handles POST /v1/intersections/{id}/violation-checks.
// The violation list is refetched before the response is written.
func (h *IntersectionHandler) CheckViolations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	found, err := h.traffic.CheckViolations(r.Context(), id)
	if err != nil {
		writeTrafficError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.ViolationCheck{IntersectionID: id, Found: found})
}

func (h *IntersectionHandler) respondIntersection(w http.ResponseWriter, r *http.Request, id string) {
	in, ok := h.traffic.Intersection(id)
	if !ok {
		// Replaced by a poll that no longer lists it.
		response.NotFound(w, r, "intersection "+id+" not found")
		return
	}
	response.JSON(w, r, http.StatusOK, in)
}
