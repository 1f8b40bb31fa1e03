// Package schedule provides cancellable periodic and one-shot tasks.
//
// Every task started here is owned by exactly one component and stopped by it
// on teardown; a stopped task never invokes its function again.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Func is the work performed on each tick.
type Func func(ctx context.Context)

// Periodic runs a function at a fixed interval until stopped.
type Periodic struct {
	mu        sync.Mutex
	interval  time.Duration
	fn        Func
	immediate bool
	cancel    context.CancelFunc
	done      chan struct{}
	reset     chan time.Duration
}

// PeriodicOption customises a Periodic task.
type PeriodicOption func(*Periodic)

// Immediately runs the function once at start, before the first interval elapses.
func Immediately() PeriodicOption {
	return func(p *Periodic) { p.immediate = true }
}

// NewPeriodic creates a stopped task that calls fn every interval.
func NewPeriodic(interval time.Duration, fn Func, opts ...PeriodicOption) *Periodic {
	p := &Periodic{interval: interval, fn: fn}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the task. Starting a running task is a no-op. The task also
// stops when ctx is cancelled.
func (p *Periodic) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.reset = make(chan time.Duration, 1)

	go p.loop(ctx, p.interval, p.reset, p.done)
}

// Stop cancels the task. It does not wait for an in-progress invocation, so it
// is safe to call from inside fn or while holding locks fn takes.
func (p *Periodic) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
}

// Reset changes the interval. A running task restarts its countdown from now.
func (p *Periodic) Reset(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.interval = interval
	if p.cancel == nil {
		return
	}
	select {
	case <-p.reset:
	default:
	}
	p.reset <- interval
}

// Interval returns the current interval.
func (p *Periodic) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Running reports whether the task has been started and not stopped.
func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Done returns a channel closed when the most recently started loop exits.
// It returns nil if the task was never started.
func (p *Periodic) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Periodic) loop(ctx context.Context, interval time.Duration, reset <-chan time.Duration, done chan struct{}) {
	defer close(done)

	if p.immediate {
		p.fn(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-reset:
			ticker.Reset(d)
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			p.fn(ctx)
		}
	}
}

// Timer is a cancellable one-shot task.
type Timer struct {
	mu      sync.Mutex
	t       *time.Timer
	stopped bool
}

// After calls fn once after d unless the returned Timer is stopped first.
func After(d time.Duration, fn func()) *Timer {
	tm := &Timer{}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.t = time.AfterFunc(d, func() {
		tm.mu.Lock()
		stopped := tm.stopped
		tm.stopped = true
		tm.mu.Unlock()
		if !stopped {
			fn()
		}
	})
	return tm
}

// Stop prevents fn from running if it has not started. It reports whether
// the call stopped the timer. A nil Timer is safe to stop.
func (tm *Timer) Stop() bool {
	if tm == nil {
		return false
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.stopped {
		return false
	}
	tm.stopped = true
	tm.t.Stop()
	return true
}
