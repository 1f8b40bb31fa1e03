package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smarttraffic/console/internal/api/models"
	"github.com/smarttraffic/console/internal/api/response"
	"github.com/smarttraffic/console/internal/media"
	"github.com/smarttraffic/console/internal/traffic"
)

// FeedHandler handles camera feed state, commands and frames.
type FeedHandler struct {
	feeds     Feeds
	traffic   Traffic
	directory *traffic.Directory
}

// NewFeedHandler creates a new FeedHandler. A feed can be activated only for
// an intersection the directory lists or the backend has reported.
func NewFeedHandler(feeds Feeds, t Traffic, directory *traffic.Directory) *FeedHandler {
	return &FeedHandler{feeds: feeds, traffic: t, directory: directory}
}

func (h *FeedHandler) known(id string) bool {
	if h.directory != nil && h.directory.Has(id) {
		return true
	}
	if h.traffic != nil {
		_, ok := h.traffic.Intersection(id)
		return ok
	}
	return false
}

// ListFeeds handles GET /v1/feeds.
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.FeedList{Items: h.feeds.States()})
}

// GetFeed handles GET /v1/feeds/{id}.
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, r, chi.URLParam(r, "id"))
}

// ActivateFeed handles PUT /v1/feeds/{id}. Activating an active feed is a no-op.
func (h *FeedHandler) ActivateFeed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.known(id) {
		response.NotFound(w, r, "intersection "+id+" not found")
		return
	}
	if err := h.feeds.Activate(id); err != nil {
		writeFeedError(w, r, err)
		return
	}
	h.respondState(w, r, id)
}

// DeactivateFeed handles DELETE /v1/feeds/{id}. Pending timers are cancelled
// and late results are dropped.
func (h *FeedHandler) DeactivateFeed(w http.ResponseWriter, r *http.Request) {
	if err := h.feeds.Deactivate(chi.URLParam(r, "id")); err != nil {
		writeFeedError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryFeed handles POST /v1/feeds/{id}/retry - reload with a fresh token.
func (h *FeedHandler) RetryFeed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.feeds.Retry(id); err != nil {
		writeFeedError(w, r, err)
		return
	}
	h.respondState(w, r, id)
}

// SetQuality handles PUT /v1/feeds/{id}/quality.
func (h *FeedHandler) SetQuality(w http.ResponseWriter, r *http.Request) {
	var input models.QualityInput
	if err := decodeJSON(r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	q, err := media.ParseQuality(input.Quality)
	if err != nil {
		response.BadRequest(w, r, "invalid quality", []models.FieldError{
			{Field: "quality", Message: "must be low, medium or high", Code: "INVALID"},
		})
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.feeds.SetQuality(id, q); err != nil {
		writeFeedError(w, r, err)
		return
	}
	h.respondState(w, r, id)
}

// GetFrame handles GET /v1/feeds/{id}/frame - the latest image. A stale feed
// keeps serving its last frame.
func (h *FeedHandler) GetFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := h.feeds.Frame(chi.URLParam(r, "id"))
	if err != nil {
		writeFeedError(w, r, err)
		return
	}
	w.Header().Set("X-Frame-Token", strconv.FormatInt(frame.Token, 10))
	w.Header().Set("Last-Modified", frame.LoadedAt.UTC().Format(http.TimeFormat))
	response.Bytes(w, r, frame.ContentType, frame.Data)
}

func (h *FeedHandler) respondState(w http.ResponseWriter, r *http.Request, id string) {
	state, err := h.feeds.State(id)
	if err != nil {
		writeFeedError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, state)
}
