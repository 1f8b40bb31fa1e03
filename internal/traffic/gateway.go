package traffic

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/smarttraffic/console/internal/notice"
)

// Backend is a source of traffic telemetry and a sink for signal commands.
// Implementations return *BackendError on failure.
type Backend interface {
	FetchTelemetry(ctx context.Context) ([]Telemetry, error)
	SetSignal(ctx context.Context, intersectionID string, status SignalStatus) error
	SetAutoMode(ctx context.Context, intersectionID string, enabled bool) error
	// CheckViolations runs a scan and returns the number of violations found.
	CheckViolations(ctx context.Context, intersectionID string) (int, error)
	FetchViolations(ctx context.Context) ([]Violation, error)
	// MediaFeedURL builds the camera feed locator. It never performs I/O.
	MediaFeedURL(intersectionID string, fps float64) string
}

// Notice texts raised by the gateway.
const (
	MsgFetchTrafficFailed    = "Failed to fetch traffic data. Make sure the backend server is running."
	MsgFetchViolationsFailed = "Failed to fetch violation data. Make sure the backend server is running."
	MsgSignalFailed          = "Failed to update traffic signal. Check backend connection."
	MsgSignalRejected        = "Failed to update traffic signal"
	MsgAutoModeFailed        = "Failed to toggle auto control. Check backend connection."
	MsgAutoModeRejected      = "Failed to update auto control mode"
	MsgViolationScanFailed   = "Failed to check for violations. Check backend connection."
	MsgViolationScanRejected = "Failed to check for traffic violations"
	MsgNoViolationsDetected  = "No traffic violations detected."
	msgSignalUpdated         = "Traffic signal updated to %s"
	msgAutoModeChanged       = "Auto control mode %s"
	msgViolationsDetected    = "Detected %d traffic violation(s)!"
)

// GatewayConfig holds configuration for a Gateway.
type GatewayConfig struct {
	Backend  Backend
	Notifier notice.Notifier
	Logger   zerolog.Logger
}

// Gateway is the boundary between the console and its backend. Failures never
// escape it: reads degrade to empty results, commands to false, and each
// failure raises a user-facing notice.
type Gateway struct {
	backend  Backend
	notifier notice.Notifier
	logger   zerolog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notice.Discard
	}
	return &Gateway{
		backend:  cfg.Backend,
		notifier: notifier,
		logger:   cfg.Logger,
	}
}

// FetchSnapshot returns the backend's current telemetry, or nil on failure.
func (g *Gateway) FetchSnapshot(ctx context.Context) []Telemetry {
	records, err := g.backend.FetchTelemetry(ctx)
	if err != nil {
		g.fail(err, "fetch_snapshot", "", MsgFetchTrafficFailed, MsgFetchTrafficFailed)
		return nil
	}
	return records
}

// SetSignal asks the backend to switch an intersection's signal and reports
// whether it acknowledged.
func (g *Gateway) SetSignal(ctx context.Context, id string, status SignalStatus) bool {
	if err := g.backend.SetSignal(ctx, id, status); err != nil {
		g.fail(err, "set_signal", id, MsgSignalFailed, MsgSignalRejected)
		return false
	}
	g.notifier.Notify(notice.LevelSuccess, fmt.Sprintf(msgSignalUpdated, status))
	return true
}

// SetAutoMode enables or disables automatic signal control and reports
// whether the backend acknowledged.
func (g *Gateway) SetAutoMode(ctx context.Context, id string, enabled bool) bool {
	if err := g.backend.SetAutoMode(ctx, id, enabled); err != nil {
		g.fail(err, "set_auto_mode", id, MsgAutoModeFailed, MsgAutoModeRejected)
		return false
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	g.notifier.Notify(notice.LevelSuccess, fmt.Sprintf(msgAutoModeChanged, state))
	return true
}

// TriggerViolationScan runs a violation scan and reports whether any
// violations were found. ok is false when the scan itself failed.
func (g *Gateway) TriggerViolationScan(ctx context.Context, id string) (found, ok bool) {
	n, err := g.backend.CheckViolations(ctx, id)
	if err != nil {
		g.fail(err, "check_violations", id, MsgViolationScanFailed, MsgViolationScanRejected)
		return false, false
	}
	if n > 0 {
		g.notifier.Notify(notice.LevelSuccess, fmt.Sprintf(msgViolationsDetected, n))
		return true, true
	}
	g.notifier.Notify(notice.LevelInfo, MsgNoViolationsDetected)
	return false, true
}

// FetchViolations returns the backend's violation list, or nil on failure.
func (g *Gateway) FetchViolations(ctx context.Context) []Violation {
	violations, err := g.backend.FetchViolations(ctx)
	if err != nil {
		g.fail(err, "fetch_violations", "", MsgFetchViolationsFailed, MsgFetchViolationsFailed)
		return nil
	}
	return violations
}

// MediaFeedURL returns the camera feed locator for an intersection.
func (g *Gateway) MediaFeedURL(id string, fps float64) string {
	return g.backend.MediaFeedURL(id, fps)
}

// fail logs err and raises a notice. Rejections carrying a backend message
// surface that message; other rejections use rejectedMsg and everything else
// uses transportMsg.
func (g *Gateway) fail(err error, op, id, transportMsg, rejectedMsg string) {
	msg := transportMsg
	kind := KindTransport

	var be *BackendError
	if errors.As(err, &be) {
		kind = be.Kind
		if be.Kind == KindRejected {
			msg = rejectedMsg
			if be.Message != "" {
				msg = be.Message
			}
		}
	}

	event := g.logger.Warn().Err(err).Str("operation", op).Str("kind", string(kind))
	if id != "" {
		event = event.Str("intersection_id", id)
	}
	event.Msg("backend call failed")

	g.notifier.Notify(notice.LevelError, msg)
}
