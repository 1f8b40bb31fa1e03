package traffic_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smarttraffic/console/internal/notice"
	"github.com/smarttraffic/console/internal/traffic"
)

// fakeBackend is a scriptable traffic.Backend.
type fakeBackend struct {
	mu         sync.Mutex
	telemetry  []traffic.Telemetry
	violations []traffic.Violation
	fetchErr   error
	signalErr  error
	autoErr    error
	scanErr    error
	scanFound  int
	violErr    error
	fetchDelay chan struct{}
	onScan     func()

	fetchCalls      atomic.Int32
	signalCalls     atomic.Int32
	autoCalls       atomic.Int32
	scanCalls       atomic.Int32
	violationsCalls atomic.Int32
}

func (f *fakeBackend) FetchTelemetry(_ context.Context) ([]traffic.Telemetry, error) {
	f.fetchCalls.Add(1)
	f.mu.Lock()
	gate := f.fetchDelay
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]traffic.Telemetry(nil), f.telemetry...), nil
}

func (f *fakeBackend) SetSignal(_ context.Context, _ string, _ traffic.SignalStatus) error {
	f.signalCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signalErr
}

func (f *fakeBackend) SetAutoMode(_ context.Context, _ string, _ bool) error {
	f.autoCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.autoErr
}

func (f *fakeBackend) CheckViolations(_ context.Context, _ string) (int, error) {
	f.scanCalls.Add(1)
	f.mu.Lock()
	hook := f.onScan
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanFound, f.scanErr
}

func (f *fakeBackend) FetchViolations(ctx context.Context) ([]traffic.Violation, error) {
	f.violationsCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, traffic.TransportError("fetch violations", 0, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.violErr != nil {
		return nil, f.violErr
	}
	return append([]traffic.Violation(nil), f.violations...), nil
}

func (f *fakeBackend) MediaFeedURL(id string, _ float64) string {
	return "http://backend/api/video_feed/" + id
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// recordingNotifier captures notices.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice.Notice
}

func (r *recordingNotifier) Notify(level notice.Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice.Notice{Level: level, Message: message, Time: time.Now()})
}

func (r *recordingNotifier) last() notice.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return notice.Notice{}
	}
	return r.notices[len(r.notices)-1]
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func status(s traffic.SignalStatus) *traffic.SignalStatus { return &s }

func telemetry(id string, count int, st traffic.SignalStatus) traffic.Telemetry {
	return traffic.Telemetry{IntersectionID: id, VehicleCount: count, Status: status(st)}
}
