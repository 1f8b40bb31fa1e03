// Package traffic holds the console's view of the intersections it controls:
// the gateway to the remote traffic backend and the synchronizer that keeps a
// local copy of intersections, vehicle-count history and violations current.
package traffic

import (
	"errors"
	"strings"
	"time"
)

// Command and validation errors.
var (
	ErrUnknownIntersection = errors.New("unknown intersection")
	ErrInvalidIntersection = errors.New("intersection id is required")
	ErrInvalidStatus       = errors.New("invalid signal status")
	ErrAutoModeActive      = errors.New("intersection is under automatic control")
	ErrCommandFailed       = errors.New("backend rejected command")
)

// SignalStatus is the active signal aspect at an intersection.
type SignalStatus string

const (
	SignalRed    SignalStatus = "red"
	SignalYellow SignalStatus = "yellow"
	SignalGreen  SignalStatus = "green"
)

// Valid reports whether s is one of the three signal aspects.
func (s SignalStatus) Valid() bool {
	switch s {
	case SignalRed, SignalYellow, SignalGreen:
		return true
	}
	return false
}

// ParseSignalStatus parses a case-insensitive signal name.
func ParseSignalStatus(s string) (SignalStatus, error) {
	st := SignalStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// Intersection is the console's local copy of one junction.
type Intersection struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	VehicleCount int          `json:"vehicleCount"`
	Status       SignalStatus `json:"status"`
	Emergency    bool         `json:"emergency"`
	AutoMode     bool         `json:"autoMode"`
	LastUpdated  time.Time    `json:"lastUpdated"`
}

// Telemetry is one per-intersection record of a backend snapshot. Status and
// AutoMode are nil when the backend omits them.
type Telemetry struct {
	IntersectionID      string
	VehicleCount        int
	HasEmergencyVehicle bool
	Timestamp           time.Time
	Status              *SignalStatus
	AutoMode            *bool
}

// ViolationType is the closed set of infraction categories.
type ViolationType string

const (
	ViolationRedLight         ViolationType = "red_light"
	ViolationSpeeding         ViolationType = "speeding"
	ViolationNoHelmet         ViolationType = "no_helmet"
	ViolationExcessPassengers ViolationType = "excess_passengers"
	ViolationOther            ViolationType = "other"
)

// ViolationStyle is how a violation type is presented.
type ViolationStyle struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// DefaultViolationColor is the color token used for other and unrecognized types.
const DefaultViolationColor = "default"

var violationStyles = map[ViolationType]ViolationStyle{
	ViolationRedLight:         {Label: "Red Light Violation", Color: "destructive"},
	ViolationSpeeding:         {Label: "Speeding", Color: "yellow"},
	ViolationNoHelmet:         {Label: "No Helmet", Color: "orange"},
	ViolationExcessPassengers: {Label: "Excess Passengers", Color: "purple"},
	ViolationOther:            {Label: "Other Violation", Color: DefaultViolationColor},
}

// Style returns the display label and color for t. Unrecognized tags are shown
// verbatim with the default color.
func (t ViolationType) Style() ViolationStyle {
	if s, ok := violationStyles[t]; ok {
		return s
	}
	return ViolationStyle{Label: string(t), Color: DefaultViolationColor}
}

// Known reports whether t is in the closed set.
func (t ViolationType) Known() bool {
	_, ok := violationStyles[t]
	return ok
}

// Violation is a detected infraction. Violations are immutable once received.
type Violation struct {
	ID            string        `json:"id"`
	VehicleNumber string        `json:"vehicleNumber"`
	Type          ViolationType `json:"type"`
	Timestamp     time.Time     `json:"timestamp"`
	Location      string        `json:"location"`
	Details       string        `json:"details,omitempty"`
	ImageURL      string        `json:"imageUrl,omitempty"`
}

// Matches reports whether the violation matches a free-text search term on
// vehicle number, type tag or type label. An empty term matches everything.
func (v Violation) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(v.VehicleNumber), term) ||
		strings.Contains(strings.ToLower(string(v.Type)), term) ||
		strings.Contains(strings.ToLower(v.Type.Style().Label), term)
}
