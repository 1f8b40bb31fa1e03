// Package backend provides a client for the traffic backend's HTTP API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smarttraffic/console/internal/provider/resilience"
	"github.com/smarttraffic/console/internal/traffic"
)

const (
	// DefaultBaseURL is where the backend listens when run locally.
	DefaultBaseURL = "http://localhost:5000"

	// ProviderName identifies this provider in the health registry.
	ProviderName = "traffic-backend"

	maxErrorBody = 4 << 10
)

// ClientConfig holds configuration for the backend client.
type ClientConfig struct {
	// BaseURL is the backend origin (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient executes requests. If nil, a resilient client is created.
	HTTPClient HTTPDoer

	// Registry receives the default client's health. Ignored when HTTPClient is set.
	Registry *resilience.Registry

	// Timeout for individual API requests (default: 5s).
	Timeout time.Duration
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the traffic backend. It implements traffic.Backend.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
}

var _ traffic.Backend = (*Client)(nil)

// NewClient creates a new backend client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Timeout:         timeout,
			MaxRetries:      2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     time.Second,
			Registry:        cfg.Registry,
		})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// API types (wire format of the backend).

type telemetryData struct {
	IntersectionID      string  `json:"intersectionId"`
	VehicleCount        int     `json:"vehicleCount"`
	HasEmergencyVehicle bool    `json:"hasEmergencyVehicle"`
	Timestamp           string  `json:"timestamp"`
	Status              *string `json:"status,omitempty"`
	AutoMode            *bool   `json:"autoMode,omitempty"`
}

type violationData struct {
	ID            string `json:"id"`
	VehicleNumber string `json:"vehicleNumber"`
	Type          string `json:"type"`
	Timestamp     string `json:"timestamp"`
	Location      string `json:"location"`
	Details       string `json:"details,omitempty"`
	ImageURL      string `json:"imageUrl,omitempty"`
}

type signalRequest struct {
	IntersectionID string `json:"intersectionId"`
	Status         string `json:"status"`
}

type autoControlRequest struct {
	IntersectionID string `json:"intersectionId"`
	Enabled        bool   `json:"enabled"`
}

type violationCheckRequest struct {
	IntersectionID string `json:"intersectionId"`
}

type commandResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Violations int    `json:"violations,omitempty"`
}

// FetchTelemetry retrieves the current per-intersection telemetry.
func (c *Client) FetchTelemetry(ctx context.Context) ([]traffic.Telemetry, error) {
	const op = "fetch telemetry"

	var data []telemetryData
	if err := c.getJSON(ctx, op, "/api/traffic", &data); err != nil {
		return nil, err
	}

	records := make([]traffic.Telemetry, 0, len(data))
	for _, d := range data {
		if d.IntersectionID == "" {
			continue
		}
		records = append(records, toTelemetry(d))
	}
	return records, nil
}

// FetchViolations retrieves recently detected violations.
func (c *Client) FetchViolations(ctx context.Context) ([]traffic.Violation, error) {
	const op = "fetch violations"

	var data []violationData
	if err := c.getJSON(ctx, op, "/api/traffic/violations", &data); err != nil {
		return nil, err
	}

	violations := make([]traffic.Violation, 0, len(data))
	for _, d := range data {
		violations = append(violations, toViolation(d))
	}
	return violations, nil
}

// SetSignal changes the signal at an intersection.
func (c *Client) SetSignal(ctx context.Context, intersectionID string, status traffic.SignalStatus) error {
	_, err := c.command(ctx, "set signal", "/api/traffic/signal", signalRequest{
		IntersectionID: intersectionID,
		Status:         string(status),
	})
	return err
}

// SetAutoMode enables or disables automatic signal control.
func (c *Client) SetAutoMode(ctx context.Context, intersectionID string, enabled bool) error {
	_, err := c.command(ctx, "set auto mode", "/api/traffic/auto_control", autoControlRequest{
		IntersectionID: intersectionID,
		Enabled:        enabled,
	})
	return err
}

// CheckViolations triggers a violation scan and returns the number found.
func (c *Client) CheckViolations(ctx context.Context, intersectionID string) (int, error) {
	resp, err := c.command(ctx, "check violations", "/api/traffic/check_violations", violationCheckRequest{
		IntersectionID: intersectionID,
	})
	if err != nil {
		return 0, err
	}
	return resp.Violations, nil
}

// MediaFeedURL builds the camera feed locator for an intersection.
func (c *Client) MediaFeedURL(intersectionID string, fps float64) string {
	return fmt.Sprintf("%s/api/video_feed/%s?fps=%s",
		c.baseURL, url.PathEscape(intersectionID), strconv.FormatFloat(fps, 'f', -1, 64))
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return traffic.TransportError(op, 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return traffic.TransportError(op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return traffic.TransportError(op, resp.StatusCode, nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return traffic.ProtocolError(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// command posts a JSON body and interprets the backend's {success, error}
// envelope. A 4xx carrying the envelope is a rejection; any other non-2xx is
// a transport failure.
func (c *Client) command(ctx context.Context, op, path string, body any) (*commandResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, traffic.ProtocolError(op, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, traffic.TransportError(op, 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, traffic.TransportError(op, 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, traffic.TransportError(op, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	var result commandResponse
	decodeErr := json.Unmarshal(raw, &result)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if decodeErr != nil {
			return nil, traffic.ProtocolError(op, fmt.Errorf("decode response: %w", decodeErr))
		}
		if !result.Success {
			return nil, traffic.RejectedError(op, result.Error)
		}
		return &result, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && decodeErr == nil && result.Error != "":
		e := traffic.RejectedError(op, result.Error)
		e.StatusCode = resp.StatusCode
		return nil, e
	default:
		return nil, traffic.TransportError(op, resp.StatusCode, nil)
	}
}

func toTelemetry(d telemetryData) traffic.Telemetry {
	t := traffic.Telemetry{
		IntersectionID:      d.IntersectionID,
		VehicleCount:        max(d.VehicleCount, 0),
		HasEmergencyVehicle: d.HasEmergencyVehicle,
		Timestamp:           parseTimestamp(d.Timestamp),
		AutoMode:            d.AutoMode,
	}
	if d.Status != nil {
		if st, err := traffic.ParseSignalStatus(*d.Status); err == nil {
			t.Status = &st
		}
	}
	return t
}

func toViolation(d violationData) traffic.Violation {
	return traffic.Violation{
		ID:            d.ID,
		VehicleNumber: d.VehicleNumber,
		Type:          traffic.ViolationType(d.Type),
		Timestamp:     parseTimestamp(d.Timestamp),
		Location:      d.Location,
		Details:       d.Details,
		ImageURL:      d.ImageURL,
	}
}

// timestampLayouts covers RFC 3339 and the zone-less ISO 8601 the reference
// backend emits.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp returns the zero time for empty or unparseable values.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
