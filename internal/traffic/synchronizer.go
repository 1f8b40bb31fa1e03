package traffic

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/smarttraffic/console/internal/notice"
	"github.com/smarttraffic/console/internal/schedule"
)

// DefaultPollInterval is the time between synchronization cycles.
const DefaultPollInterval = 3 * time.Second

// DefaultFollowUpTimeout bounds the violation refresh that follows a scan.
const DefaultFollowUpTimeout = 10 * time.Second

// Status texts owned by the synchronizer.
const (
	MsgCycleFailed        = "Failed to fetch traffic data. Please try again."
	MsgSelectIntersection = "Select an intersection before checking for violations."
	MsgAutoModeActive     = "Disable auto control mode to change the signal manually."
)

// OverlapPolicy decides what happens when a poll is due while the previous
// one is still waiting on the backend.
type OverlapPolicy int

const (
	// OverlapAllow starts the new cycle anyway; the last response to arrive wins.
	OverlapAllow OverlapPolicy = iota
	// OverlapSkip drops the new cycle.
	OverlapSkip
)

// Recorder archives what the synchronizer receives. Errors are logged and
// never affect synchronizer state.
type Recorder interface {
	RecordHistory(ctx context.Context, point HistoryPoint) error
	RecordViolations(ctx context.Context, violations []Violation) error
}

// Metrics receives synchronizer measurements.
type Metrics interface {
	RecordCycle(ctx context.Context, duration time.Duration, ok bool)
	RecordCommand(ctx context.Context, command string, ok bool)
}

// SynchronizerConfig holds configuration for a Synchronizer.
type SynchronizerConfig struct {
	Gateway   *Gateway
	Directory *Directory
	Notifier  notice.Notifier
	Logger    zerolog.Logger

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// FollowUpTimeout defaults to DefaultFollowUpTimeout. The refresh after a
	// violation scan runs detached from the caller's context.
	FollowUpTimeout time.Duration

	// HistoryCapacity defaults to DefaultHistoryCapacity.
	HistoryCapacity int

	// HistoryBucket is the spacing of the seeded history points.
	HistoryBucket time.Duration

	Overlap OverlapPolicy

	// GuardStalePolls keeps a field patched by an acknowledged command when a
	// poll that started before the acknowledgment completes after it.
	GuardStalePolls bool

	Recorder Recorder
	Metrics  Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Status summarises the synchronizer's lifecycle.
type Status struct {
	Running           bool      `json:"running"`
	Loading           bool      `json:"loading"`
	Error             string    `json:"error,omitempty"`
	LastSyncAt        time.Time `json:"lastSyncAt"`
	Intersections     int       `json:"intersections"`
	ViolationsLoading bool      `json:"violationsLoading"`
	Cycles            int64     `json:"cycles"`
	FailedCycles      int64     `json:"failedCycles"`
	SkippedCycles     int64     `json:"skippedCycles"`
	DiscardedCycles   int64     `json:"discardedCycles"`
}

// patch records the poll sequence at which a command was acknowledged.
type patch struct {
	status    *SignalStatus
	statusSeq uint64
	autoMode  *bool
	autoSeq   uint64
}

// Synchronizer owns the console's copy of the intersections, their
// vehicle-count history and the violation list. It refreshes them from the
// backend on a fixed cadence and patches them when commands are acknowledged.
type Synchronizer struct {
	gateway   *Gateway
	directory *Directory
	notifier  notice.Notifier
	logger    zerolog.Logger
	recorder  Recorder
	metrics   Metrics
	now       func() time.Time
	overlap   OverlapPolicy
	guard     bool
	followUp  time.Duration

	poll     *schedule.Periodic
	changes  *notice.Changes
	inFlight atomic.Bool

	mu                sync.RWMutex
	intersections     []Intersection
	history           *History
	violations        []Violation
	patches           map[string]*patch
	running           bool
	pending           int
	lastErr           string
	lastSync          time.Time
	generation        uint64
	pollSeq           uint64
	violationsLoading int
	cycles            int64
	failedCycles      int64
	skippedCycles     int64
	discardedCycles   int64
}

// NewSynchronizer creates a stopped Synchronizer with a zero-filled history window.
func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = DefaultHistoryCapacity
	}
	if cfg.FollowUpTimeout <= 0 {
		cfg.FollowUpTimeout = DefaultFollowUpTimeout
	}
	if cfg.Directory == nil {
		cfg.Directory = NewDirectory(nil)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notice.Discard
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Synchronizer{
		gateway:   cfg.Gateway,
		directory: cfg.Directory,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		recorder:  cfg.Recorder,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		overlap:   cfg.Overlap,
		guard:     cfg.GuardStalePolls,
		followUp:  cfg.FollowUpTimeout,
		changes:   notice.NewChanges(),
		history:   SeedHistory(cfg.HistoryCapacity, cfg.Now(), cfg.HistoryBucket, cfg.Directory.Labels()),
		patches:   make(map[string]*patch),
	}
	s.poll = schedule.NewPeriodic(cfg.PollInterval, func(ctx context.Context) {
		// A fetch already issued runs to completion after Stop; its result is
		// dropped by the generation check.
		s.Refresh(context.WithoutCancel(ctx))
	}, schedule.Immediately())
	return s
}

// Start runs one cycle immediately and then one every poll interval until
// Stop is called or ctx is cancelled.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.poll.Interval()).Msg("traffic synchronizer started")
	s.poll.Start(ctx)
}

// Stop cancels the poll loop. Cycles and commands still waiting on the
// backend complete, but their results are discarded.
func (s *Synchronizer) Stop() {
	s.poll.Stop()

	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.pending = 0
	s.generation++
	s.mu.Unlock()

	if wasRunning {
		s.logger.Info().Msg("traffic synchronizer stopped")
		s.changes.Broadcast()
	}
}

// Subscribe returns a channel signalled whenever synchronizer state changes.
func (s *Synchronizer) Subscribe() (<-chan struct{}, func()) {
	return s.changes.Subscribe()
}

// Refresh runs one synchronization cycle and reports whether it replaced the
// intersections. A failed fetch leaves intersections and history untouched.
func (s *Synchronizer) Refresh(ctx context.Context) bool {
	if s.overlap == OverlapSkip {
		if !s.inFlight.CompareAndSwap(false, true) {
			s.mu.Lock()
			s.skippedCycles++
			s.mu.Unlock()
			s.logger.Debug().Msg("poll skipped, previous cycle still in flight")
			return false
		}
		defer s.inFlight.Store(false)
	}

	s.mu.Lock()
	gen := s.generation
	s.pollSeq++
	seq := s.pollSeq
	s.pending++
	s.mu.Unlock()
	s.changes.Broadcast()

	start := s.now()
	records := s.gateway.FetchSnapshot(ctx)
	syncedAt := s.now()

	s.mu.Lock()
	if gen != s.generation {
		s.discardedCycles++
		s.mu.Unlock()
		s.logger.Debug().Uint64("poll_seq", seq).Msg("discarding poll result after stop")
		return false
	}
	s.pending--

	if len(records) == 0 {
		s.failedCycles++
		s.lastErr = MsgCycleFailed
		s.mu.Unlock()
		s.metrics.RecordCycle(ctx, syncedAt.Sub(start), false)
		s.changes.Broadcast()
		return false
	}

	next := make([]Intersection, 0, len(records))
	for _, r := range records {
		next = append(next, s.reconcile(r, seq, syncedAt))
	}
	s.intersections = next
	point := NewHistoryPoint(syncedAt, next)
	s.history.Append(point)
	s.lastSync = syncedAt
	s.lastErr = ""
	s.cycles++
	s.mu.Unlock()

	s.metrics.RecordCycle(ctx, syncedAt.Sub(start), true)
	s.changes.Broadcast()

	if s.recorder != nil {
		if err := s.recorder.RecordHistory(ctx, point); err != nil {
			s.logger.Warn().Err(err).Msg("failed to archive history point")
		}
	}
	return true
}

// reconcile builds the new local copy of one intersection. Callers hold s.mu.
func (s *Synchronizer) reconcile(r Telemetry, seq uint64, syncedAt time.Time) Intersection {
	prev, hadPrev := s.find(r.IntersectionID)

	in := Intersection{
		ID:           r.IntersectionID,
		Name:         s.directory.Name(r.IntersectionID),
		VehicleCount: r.VehicleCount,
		Emergency:    r.HasEmergencyVehicle,
		Status:       SignalRed,
		LastUpdated:  syncedAt,
	}
	if hadPrev {
		in.Status = prev.Status
		in.AutoMode = prev.AutoMode
	}
	if r.Status != nil && r.Status.Valid() {
		in.Status = *r.Status
	}
	if r.AutoMode != nil {
		in.AutoMode = *r.AutoMode
	}

	if !s.guard {
		return in
	}
	p, ok := s.patches[in.ID]
	if !ok {
		return in
	}
	if p.status != nil {
		if seq <= p.statusSeq {
			in.Status = *p.status
		} else {
			p.status = nil
		}
	}
	if p.autoMode != nil {
		if seq <= p.autoSeq {
			in.AutoMode = *p.autoMode
		} else {
			p.autoMode = nil
		}
	}
	if p.status == nil && p.autoMode == nil {
		delete(s.patches, in.ID)
	}
	return in
}

// find returns the intersection with id. Callers hold s.mu.
func (s *Synchronizer) find(id string) (Intersection, bool) {
	for _, in := range s.intersections {
		if in.ID == id {
			return in, true
		}
	}
	return Intersection{}, false
}

// SetSignal switches an intersection's signal. The local copy is patched only
// after the backend acknowledges; on failure state is left untouched.
func (s *Synchronizer) SetSignal(ctx context.Context, id string, status SignalStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	s.mu.RLock()
	in, ok := s.find(id)
	gen := s.generation
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIntersection, id)
	}
	if in.AutoMode {
		s.notifier.Notify(notice.LevelWarning, MsgAutoModeActive)
		return fmt.Errorf("%w: %s", ErrAutoModeActive, id)
	}

	acked := s.gateway.SetSignal(ctx, id, status)
	s.metrics.RecordCommand(ctx, "set_signal", acked)
	if !acked {
		return fmt.Errorf("set signal %s: %w", id, ErrCommandFailed)
	}

	applied := s.apply(gen, id, func(in *Intersection, p *patch, seq uint64) {
		in.Status = status
		in.LastUpdated = s.now()
		st := status
		p.status = &st
		p.statusSeq = seq
	})
	s.logger.Info().Str("intersection_id", id).Str("status", string(status)).Bool("applied", applied).Msg("signal updated")
	return nil
}

// SetAutoMode enables or disables automatic control. The local copy is
// patched only after the backend acknowledges.
func (s *Synchronizer) SetAutoMode(ctx context.Context, id string, enabled bool) error {
	s.mu.RLock()
	_, ok := s.find(id)
	gen := s.generation
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIntersection, id)
	}

	acked := s.gateway.SetAutoMode(ctx, id, enabled)
	s.metrics.RecordCommand(ctx, "set_auto_mode", acked)
	if !acked {
		return fmt.Errorf("set auto mode %s: %w", id, ErrCommandFailed)
	}

	applied := s.apply(gen, id, func(in *Intersection, p *patch, seq uint64) {
		in.AutoMode = enabled
		e := enabled
		p.autoMode = &e
		p.autoSeq = seq
	})
	s.logger.Info().Str("intersection_id", id).Bool("enabled", enabled).Bool("applied", applied).Msg("auto mode updated")
	return nil
}

// apply patches one intersection in place unless the synchronizer was stopped
// since gen or the intersection disappeared in the meantime.
func (s *Synchronizer) apply(gen uint64, id string, fn func(in *Intersection, p *patch, seq uint64)) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	idx := -1
	for i := range s.intersections {
		if s.intersections[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}

	// Replace the slice so views handed out earlier stay unchanged.
	next := make([]Intersection, len(s.intersections))
	copy(next, s.intersections)
	p, ok := s.patches[id]
	if !ok {
		p = &patch{}
		s.patches[id] = p
	}
	fn(&next[idx], p, s.pollSeq)
	if !s.guard {
		delete(s.patches, id)
	}
	s.intersections = next
	s.mu.Unlock()

	s.changes.Broadcast()
	return true
}

// CheckViolations runs a violation scan at an intersection and then refreshes
// the violation list whatever the scan's outcome. A blank id is rejected
// without contacting the backend. The refresh outlives a cancelled caller so
// a dropped request cannot empty the list.
func (s *Synchronizer) CheckViolations(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		s.notifier.Notify(notice.LevelError, MsgSelectIntersection)
		return false, ErrInvalidIntersection
	}

	s.mu.RLock()
	_, ok := s.find(id)
	s.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownIntersection, id)
	}

	found, ok := s.gateway.TriggerViolationScan(ctx, id)
	s.metrics.RecordCommand(ctx, "check_violations", ok)

	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.followUp)
	defer cancel()
	s.RefreshViolations(refreshCtx)
	return found, nil
}

// RefreshViolations replaces the violation list with the backend's. A failed
// fetch yields an empty list.
func (s *Synchronizer) RefreshViolations(ctx context.Context) {
	s.mu.Lock()
	gen := s.generation
	s.violationsLoading++
	s.mu.Unlock()
	s.changes.Broadcast()

	violations := s.gateway.FetchViolations(ctx)

	s.mu.Lock()
	s.violationsLoading--
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.violations = violations
	s.mu.Unlock()
	s.changes.Broadcast()

	if s.recorder != nil && len(violations) > 0 {
		if err := s.recorder.RecordViolations(ctx, violations); err != nil {
			s.logger.Warn().Err(err).Int("count", len(violations)).Msg("failed to archive violations")
		}
	}
}

// Intersections returns a copy of the current intersections in backend order.
func (s *Synchronizer) Intersections() []Intersection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Intersection, len(s.intersections))
	copy(out, s.intersections)
	return out
}

// Intersection returns one intersection by id.
func (s *Synchronizer) Intersection(id string) (Intersection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(id)
}

// History returns a copy of the history window, oldest first.
func (s *Synchronizer) History() []HistoryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Points()
}

// Series projects the history window into one series per intersection label,
// in the order intersections are currently listed.
func (s *Synchronizer) Series() []Series {
	s.mu.RLock()
	points := s.history.Points()
	order := make([]string, 0, len(s.intersections))
	for _, in := range s.intersections {
		order = append(order, in.Name)
	}
	s.mu.RUnlock()

	order = append(order, s.directory.Labels()...)
	return ProjectSeries(points, order)
}

// Total projects the history window into the total vehicle count series.
func (s *Synchronizer) Total() Series {
	return ProjectTotal(s.History())
}

// Violations returns a copy of the current violation list.
func (s *Synchronizer) Violations() []Violation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Violation, len(s.violations))
	copy(out, s.violations)
	return out
}

// SearchViolations returns the violations matching term.
func (s *Synchronizer) SearchViolations(term string) []Violation {
	all := s.Violations()
	out := make([]Violation, 0, len(all))
	for _, v := range all {
		if v.Matches(term) {
			out = append(out, v)
		}
	}
	return out
}

// Status returns lifecycle information.
func (s *Synchronizer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Running:           s.running,
		Loading:           s.pending > 0,
		Error:             s.lastErr,
		LastSyncAt:        s.lastSync,
		Intersections:     len(s.intersections),
		ViolationsLoading: s.violationsLoading > 0,
		Cycles:            s.cycles,
		FailedCycles:      s.failedCycles,
		SkippedCycles:     s.skippedCycles,
		DiscardedCycles:   s.discardedCycles,
	}
}

// MediaFeedURL exposes the gateway's feed locator for the media controller.
func (s *Synchronizer) MediaFeedURL(id string, fps float64) string {
	return s.gateway.MediaFeedURL(id, fps)
}

type noopMetrics struct{}

func (noopMetrics) RecordCycle(context.Context, time.Duration, bool) {}
func (noopMetrics) RecordCommand(context.Context, string, bool)      {}
