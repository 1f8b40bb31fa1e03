package models

import (
	"github.com/smarttraffic/console/internal/media"
	"github.com/smarttraffic/console/internal/notice"
	"github.com/smarttraffic/console/internal/traffic"
)

// IntersectionList is the response of GET /v1/intersections.
type IntersectionList struct {
	Items []traffic.Intersection `json:"items"`
}

// SignalInput is the body of POST /v1/intersections/{id}/signal.
type SignalInput struct {
	Status string `json:"status"`
}

// AutoModeInput is the body of POST /v1/intersections/{id}/auto-mode.
type AutoModeInput struct {
	Enabled *bool `json:"enabled"`
}

// ViolationCheck is the response of a violation scan.
type ViolationCheck struct {
	IntersectionID string `json:"intersectionId"`
	Found          bool   `json:"found"`
}

// Violation is a violation with its display style.
type Violation struct {
	traffic.Violation
	Label string `json:"label"`
	Color string `json:"color"`
}

// NewViolation attaches the display style of v's type.
func NewViolation(v traffic.Violation) Violation {
	style := v.Type.Style()
	return Violation{Violation: v, Label: style.Label, Color: style.Color}
}

// NewViolations styles every violation in vs.
func NewViolations(vs []traffic.Violation) []Violation {
	out := make([]Violation, len(vs))
	for i, v := range vs {
		out[i] = NewViolation(v)
	}
	return out
}

// ViolationList is the response of the violation endpoints.
type ViolationList struct {
	Items []Violation       `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// HistoryWindow is the response of GET /v1/history.
type HistoryWindow struct {
	Capacity int                    `json:"capacity"`
	Points   []traffic.HistoryPoint `json:"points"`
}

// SeriesResponse is the response of GET /v1/history/series.
type SeriesResponse struct {
	Series []traffic.Series `json:"series"`
	Total  traffic.Series   `json:"total"`
}

// HistoryList is the response of GET /v1/archive/history.
type HistoryList struct {
	Items []traffic.HistoryPoint `json:"items"`
	Meta  PagedResponseMeta      `json:"meta"`
}

// NoticeList is the response of GET /v1/notices.
type NoticeList struct {
	Items []notice.Notice `json:"items"`
}

// FeedList is the response of GET /v1/feeds.
type FeedList struct {
	Items []media.FeedState `json:"items"`
}

// QualityInput is the body of PUT /v1/feeds/{id}/quality.
type QualityInput struct {
	Quality string `json:"quality"`
}

// Snapshot is pushed on the live stream whenever intersections, violations
// or feeds change.
type Snapshot struct {
	Time          Timestamp              `json:"time"`
	Sync          traffic.Status         `json:"sync"`
	Intersections []traffic.Intersection `json:"intersections"`
	Violations    []Violation            `json:"violations"`
	Feeds         []media.FeedState      `json:"feeds"`
}

// Stream message types.
const (
	StreamSnapshot = "snapshot"
	StreamNotice   = "notice"
)

// StreamMessage is one message on the live stream.
type StreamMessage struct {
	Type     string         `json:"type"`
	Snapshot *Snapshot      `json:"snapshot,omitempty"`
	Notice   *notice.Notice `json:"notice,omitempty"`
}
