// Package fixture provides an in-process traffic backend for demos and
// offline operation. It behaves like the real backend: it holds signal and
// auto-mode state, produces fresh vehicle counts on every fetch and records
// violations when scans are triggered.
package fixture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smarttraffic/console/internal/traffic"
)

// URLScheme prefixes every feed locator produced by the fixture.
const URLScheme = "fixture://"

const maxViolations = 50

// Config configures a Backend.
type Config struct {
	// Directory names the simulated intersections and violation locations.
	Directory *traffic.Directory

	// Intersections lists the simulated ids (defaults to the directory's ids).
	Intersections []string

	// EmergencyRate is the chance per fetch that an intersection reports an
	// emergency vehicle (default 0.1).
	EmergencyRate float64

	// Seed makes the generated data reproducible when non-zero.
	Seed uint64

	Now func() time.Time
}

type state struct {
	status   traffic.SignalStatus
	autoMode bool
}

// Backend is a simulated traffic backend. It implements traffic.Backend.
type Backend struct {
	mu         sync.Mutex
	ids        []string
	states     map[string]*state
	violations []traffic.Violation
	directory  *traffic.Directory
	rng        *rand.Rand
	emergency  float64
	now        func() time.Time
}

var _ traffic.Backend = (*Backend)(nil)

// New creates a Backend.
func New(cfg Config) *Backend {
	if cfg.Directory == nil {
		cfg.Directory = traffic.NewDirectory(nil)
	}
	ids := cfg.Intersections
	if len(ids) == 0 {
		ids = cfg.Directory.IDs()
	}
	if cfg.EmergencyRate == 0 {
		cfg.EmergencyRate = 0.1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	b := &Backend{
		ids:       append([]string(nil), ids...),
		states:    make(map[string]*state, len(ids)),
		directory: cfg.Directory,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		emergency: cfg.EmergencyRate,
		now:       cfg.Now,
	}
	initial := []traffic.SignalStatus{traffic.SignalRed, traffic.SignalGreen, traffic.SignalYellow, traffic.SignalGreen}
	for i, id := range ids {
		b.states[id] = &state{status: initial[i%len(initial)]}
	}
	return b
}

// FetchTelemetry returns a fresh reading for every intersection. Intersections
// under automatic control pick their own signal from the traffic level.
func (b *Backend) FetchTelemetry(_ context.Context) ([]traffic.Telemetry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	records := make([]traffic.Telemetry, 0, len(b.ids))
	for _, id := range b.ids {
		st := b.states[id]
		count := b.rng.IntN(20) + 1
		emergency := b.rng.Float64() < b.emergency
		if st.autoMode {
			st.status = autoSignal(count, emergency)
		}
		status := st.status
		auto := st.autoMode
		records = append(records, traffic.Telemetry{
			IntersectionID:      id,
			VehicleCount:        count,
			HasEmergencyVehicle: emergency,
			Timestamp:           now,
			Status:              &status,
			AutoMode:            &auto,
		})
	}
	return records, nil
}

func autoSignal(count int, emergency bool) traffic.SignalStatus {
	switch {
	case emergency:
		return traffic.SignalRed
	case count >= 12:
		return traffic.SignalGreen
	case count >= 6:
		return traffic.SignalYellow
	default:
		return traffic.SignalRed
	}
}

// SetSignal sets the signal at an intersection.
func (b *Backend) SetSignal(_ context.Context, id string, status traffic.SignalStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[id]
	if !ok || !status.Valid() {
		return traffic.RejectedError("set signal", "Invalid request parameters")
	}
	st.status = status
	return nil
}

// SetAutoMode toggles automatic control at an intersection.
func (b *Backend) SetAutoMode(_ context.Context, id string, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[id]
	if !ok {
		return traffic.RejectedError("set auto mode", "Unknown intersection")
	}
	st.autoMode = enabled
	return nil
}

var violationTypes = []traffic.ViolationType{
	traffic.ViolationRedLight,
	traffic.ViolationSpeeding,
	traffic.ViolationNoHelmet,
	traffic.ViolationExcessPassengers,
	traffic.ViolationOther,
}

// CheckViolations records between zero and two new violations at id.
func (b *Backend) CheckViolations(_ context.Context, id string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.states[id]; !ok {
		return 0, traffic.RejectedError("check violations", "Unknown intersection")
	}

	n := b.rng.IntN(3)
	location := b.directory.Name(id)
	for i := 0; i < n; i++ {
		vid := uuid.NewString()
		v := traffic.Violation{
			ID:            vid,
			VehicleNumber: b.plate(),
			Type:          violationTypes[b.rng.IntN(len(violationTypes))],
			Timestamp:     b.now(),
			Location:      location,
			ImageURL:      URLScheme + "violations/" + vid + ".png",
		}
		b.violations = append([]traffic.Violation{v}, b.violations...)
	}
	if len(b.violations) > maxViolations {
		b.violations = b.violations[:maxViolations]
	}
	return n, nil
}

func (b *Backend) plate() string {
	const letters = "ABCDEFGHJKLMNPRSTUVWXYZ"
	var sb strings.Builder
	for i := 0; i < 3; i++ {
		sb.WriteByte(letters[b.rng.IntN(len(letters))])
	}
	sb.WriteByte('-')
	sb.WriteString(strconv.Itoa(1000 + b.rng.IntN(9000)))
	return sb.String()
}

// FetchViolations returns recorded violations, newest first.
func (b *Backend) FetchViolations(_ context.Context) ([]traffic.Violation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]traffic.Violation(nil), b.violations...), nil
}

// MediaFeedURL returns a fixture locator understood by Frame.
func (b *Backend) MediaFeedURL(id string, fps float64) string {
	return fmt.Sprintf("%svideo_feed/%s?fps=%s", URLScheme, id, strconv.FormatFloat(fps, 'f', -1, 64))
}

// Frame renders a small synthetic camera frame for a fixture locator: a
// solid tile in the intersection's current signal color.
func (b *Backend) Frame(_ context.Context, locator string) ([]byte, string, error) {
	if !strings.HasPrefix(locator, URLScheme+"video_feed/") {
		return nil, "", fmt.Errorf("not a fixture feed: %s", locator)
	}
	id := strings.TrimPrefix(locator, URLScheme+"video_feed/")
	if i := strings.IndexByte(id, '?'); i >= 0 {
		id = id[:i]
	}

	b.mu.Lock()
	st, ok := b.states[id]
	var status traffic.SignalStatus
	if ok {
		status = st.status
	}
	b.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("unknown fixture feed: %s", id)
	}

	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	fill := signalColor(status)
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}

func signalColor(s traffic.SignalStatus) color.RGBA {
	switch s {
	case traffic.SignalGreen:
		return color.RGBA{G: 200, A: 255}
	case traffic.SignalYellow:
		return color.RGBA{R: 230, G: 200, A: 255}
	default:
		return color.RGBA{R: 220, A: 255}
	}
}
