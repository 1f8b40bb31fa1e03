package handler

import (
	"net/http"

	"github.com/smarttraffic/console/internal/api/models"
	"github.com/smarttraffic/console/internal/api/response"
)

// ViolationHandler serves the current violation list.
type ViolationHandler struct {
	traffic Traffic
}

// NewViolationHandler creates a new ViolationHandler.
func NewViolationHandler(t Traffic) *ViolationHandler {
	return &ViolationHandler{traffic: t}
}

// ListViolations handles GET /v1/violations?q= - free-text search over
// vehicle number and violation type.
func (h *ViolationHandler) ListViolations(w http.ResponseWriter, r *http.Request) {
	items := models.NewViolations(h.traffic.SearchViolations(r.URL.Query().Get("q")))
	response.JSON(w, r, http.StatusOK, models.ViolationList{
		Items: items,
		Meta:  models.PagedResponseMeta{Limit: len(items), Count: len(items)},
	})
}

type violationCheckInput struct {
	IntersectionID string `json:"intersectionId"`
}

// CheckViolations handles POST /v1/violation-checks with the selected
// intersection in the body. An empty selection is rejected before the
// backend is contacted.
func (h *ViolationHandler) CheckViolations(w http.ResponseWriter, r *http.Request) {
	var input violationCheckInput
	if err := decodeJSON(r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	found, err := h.traffic.CheckViolations(r.Context(), input.IntersectionID)
	if err != nil {
		writeTrafficError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.ViolationCheck{IntersectionID: input.IntersectionID, Found: found})
}
