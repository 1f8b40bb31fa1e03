package handler

import (
	"net/http"
	"strconv"

	"github.com/smarttraffic/console/internal/api/models"
	"github.com/smarttraffic/console/internal/api/response"
	"github.com/smarttraffic/console/internal/notice"
)

// NoticeHandler serves recent user-facing notices.
type NoticeHandler struct {
	center *notice.Center
}

// NewNoticeHandler creates a new NoticeHandler.
func NewNoticeHandler(center *notice.Center) *NoticeHandler {
	return &NoticeHandler{center: center}
}

// ListNotices handles GET /v1/notices. With ?since=<id> only newer notices
// are returned; otherwise ?limit= bounds the most recent ones.
func (h *NoticeHandler) ListNotices(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			response.BadRequest(w, r, "since must be a notice id", nil)
			return
		}
		response.JSON(w, r, http.StatusOK, models.NoticeList{Items: nonNil(h.center.Since(since))})
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NoticeList{Items: h.center.Recent(limit)})
}

func nonNil(ns []notice.Notice) []notice.Notice {
	if ns == nil {
		return []notice.Notice{}
	}
	return ns
}
