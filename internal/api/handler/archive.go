package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/smarttraffic/console/internal/api/models"
	"github.com/smarttraffic/console/internal/api/response"
	"github.com/smarttraffic/console/internal/archive"
	"github.com/smarttraffic/console/internal/traffic"
)

// maxArchiveLimit caps a single archive page.
const maxArchiveLimit = 1000

// ArchiveHandler serves archived history points and violations.
type ArchiveHandler struct {
	repo   archive.Repository
	logger zerolog.Logger
}

// NewArchiveHandler creates a new ArchiveHandler.
func NewArchiveHandler(repo archive.Repository, logger zerolog.Logger) *ArchiveHandler {
	return &ArchiveHandler{repo: repo, logger: logger}
}

// ListHistory handles GET /v1/archive/history?since=&limit=, newest first.
func (h *ArchiveHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.listOptions(w, r)
	if !ok {
		return
	}
	points, err := h.repo.ListHistory(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list archived history")
		response.ServiceUnavailable(w, r, "archive unavailable")
		return
	}
	if points == nil {
		points = []traffic.HistoryPoint{}
	}
	response.JSON(w, r, http.StatusOK, models.HistoryList{
		Items: points,
		Meta:  models.PagedResponseMeta{Limit: limitOrDefault(opts.Limit), Count: len(points)},
	})
}

// ListViolations handles GET /v1/archive/violations?since=&limit=, newest first.
func (h *ArchiveHandler) ListViolations(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.listOptions(w, r)
	if !ok {
		return
	}
	violations, err := h.repo.ListViolations(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list archived violations")
		response.ServiceUnavailable(w, r, "archive unavailable")
		return
	}
	items := models.NewViolations(violations)
	response.JSON(w, r, http.StatusOK, models.ViolationList{
		Items: items,
		Meta:  models.PagedResponseMeta{Limit: limitOrDefault(opts.Limit), Count: len(items)},
	})
}

func (h *ArchiveHandler) listOptions(w http.ResponseWriter, r *http.Request) (archive.ListOptions, bool) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{{Field: "limit", Message: err.Error()}})
		return archive.ListOptions{}, false
	}
	if limit > maxArchiveLimit {
		limit = maxArchiveLimit
	}
	since, err := queryTime(r, "since")
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{{Field: "since", Message: err.Error()}})
		return archive.ListOptions{}, false
	}
	return archive.ListOptions{Since: since, Limit: limit}, true
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return archive.DefaultListLimit
	}
	return limit
}
