// Package media drives the per-intersection camera feeds.
//
// Each feed is a small state machine: loading, then ready once a frame has
// arrived, then stale or error when loads start failing. A ready feed is kept
// live by re-requesting the frame at the selected quality's rate, each time
// with a fresh cache-defeating token.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnknownFeed is returned for an intersection without an active feed.
	ErrUnknownFeed = errors.New("unknown feed")

	// ErrInvalidQuality is returned for a quality outside the known tiers.
	ErrInvalidQuality = errors.New("invalid quality")

	// ErrNoFrame is returned when a feed has not received a frame yet.
	ErrNoFrame = errors.New("no frame available")

	// ErrClosed is returned after the controller has been closed.
	ErrClosed = errors.New("media controller closed")
)

// User-facing feed errors.
const (
	MsgLoadTimeout = "Camera feed is taking longer than expected to load. Please check your backend connection."
	MsgLoadFailed  = "Failed to load camera feed. Please ensure the backend server is running."
)

// Phase is the lifecycle phase of a feed.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	// PhaseStale means a refresh failed; the last frame is still shown.
	PhaseStale Phase = "stale"
	PhaseError Phase = "error"
)

// Quality selects how often a ready feed is refreshed.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// DefaultQuality is used when none is configured.
const DefaultQuality = QualityMedium

var qualityRates = map[Quality]float64{
	QualityLow:    0.5,
	QualityMedium: 1,
	QualityHigh:   2,
}

// Valid reports whether q is a known tier.
func (q Quality) Valid() bool {
	_, ok := qualityRates[q]
	return ok
}

// FPS returns the refresh rate of the tier, or 0 for an unknown tier.
func (q Quality) FPS() float64 {
	return qualityRates[q]
}

// Interval returns the time between refreshes.
func (q Quality) Interval() time.Duration {
	fps := q.FPS()
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

// ParseQuality converts user input into a Quality.
func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	if !q.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidQuality, s)
	}
	return q, nil
}

// Frame is one image received from a feed.
type Frame struct {
	Data        []byte
	ContentType string
	Token       int64
	LoadedAt    time.Time
}

// Loader fetches a single frame from a feed locator.
type Loader interface {
	Load(ctx context.Context, locator string) (Frame, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, locator string) (Frame, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, locator string) (Frame, error) {
	return f(ctx, locator)
}

// FeedState is a snapshot of one feed.
type FeedState struct {
	IntersectionID string    `json:"intersectionId"`
	Phase          Phase     `json:"phase"`
	Loading        bool      `json:"loading"`
	Error          string    `json:"error,omitempty"`
	Retries        int       `json:"retries"`
	Quality        Quality   `json:"quality"`
	FPS            float64   `json:"fps"`
	Token          int64     `json:"token"`
	Locator        string    `json:"locator"`
	HasFrame       bool      `json:"hasFrame"`
	LastFrameAt    time.Time `json:"lastFrameAt,omitzero"`
}
