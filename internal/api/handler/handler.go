// Package handler provides HTTP handlers for the console API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/smarttraffic/console/internal/api/response"
	"github.com/smarttraffic/console/internal/media"
	"github.com/smarttraffic/console/internal/traffic"
)

// maxBodyBytes bounds command request bodies.
const maxBodyBytes = 4 << 10

// Traffic is the synchronizer surface the handlers use.
// *traffic.Synchronizer satisfies it.
type Traffic interface {
	Intersections() []traffic.Intersection
	Intersection(id string) (traffic.Intersection, bool)
	SetSignal(ctx context.Context, id string, status traffic.SignalStatus) error
	SetAutoMode(ctx context.Context, id string, enabled bool) error
	CheckViolations(ctx context.Context, id string) (bool, error)
	History() []traffic.HistoryPoint
	Series() []traffic.Series
	Total() traffic.Series
	Violations() []traffic.Violation
	SearchViolations(term string) []traffic.Violation
	Status() traffic.Status
	Subscribe() (<-chan struct{}, func())
}

// Feeds is the media controller surface the handlers use.
// *media.Controller satisfies it.
type Feeds interface {
	Activate(id string) error
	Deactivate(id string) error
	Retry(id string) error
	SetQuality(id string, q media.Quality) error
	State(id string) (media.FeedState, error)
	States() []media.FeedState
	Frame(id string) (media.Frame, error)
	Subscribe() (<-chan struct{}, func())
}

var (
	_ Traffic = (*traffic.Synchronizer)(nil)
	_ Feeds   = (*media.Controller)(nil)
)

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeTrafficError maps synchronizer errors to problem responses.
func writeTrafficError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, traffic.ErrUnknownIntersection):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, traffic.ErrInvalidIntersection), errors.Is(err, traffic.ErrInvalidStatus):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, traffic.ErrAutoModeActive):
		response.Conflict(w, r, traffic.MsgAutoModeActive)
	case errors.Is(err, traffic.ErrCommandFailed):
		response.BadGateway(w, r, err.Error())
	default:
		response.InternalError(w, r, "unexpected error")
	}
}

// writeFeedError maps media controller errors to problem responses.
func writeFeedError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, media.ErrUnknownFeed), errors.Is(err, media.ErrNoFrame):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, media.ErrInvalidQuality):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, media.ErrClosed):
		response.ServiceUnavailable(w, r, err.Error())
	default:
		response.InternalError(w, r, "unexpected error")
	}
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

// queryTime parses an optional RFC 3339 query parameter.
func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New(name + " must be an RFC 3339 timestamp")
	}
	return t, nil
}
