package schedule_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/console/internal/schedule"
)

func TestPeriodic_RunsImmediatelyThenOnInterval(t *testing.T) {
	var calls atomic.Int32
	p := schedule.NewPeriodic(20*time.Millisecond, func(context.Context) {
		calls.Add(1)
	}, schedule.Immediately())

	p.Start(context.Background())
	defer p.Stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 100*time.Millisecond, time.Millisecond)
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, p.Running())
}

func TestPeriodic_StopPreventsFurtherCalls(t *testing.T) {
	var calls atomic.Int32
	p := schedule.NewPeriodic(10*time.Millisecond, func(context.Context) {
		calls.Add(1)
	})

	p.Start(context.Background())
	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)

	p.Stop()
	done := p.Done()
	require.NotNil(t, done)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit")
	}

	n := calls.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, n, calls.Load())
	assert.False(t, p.Running())
}

func TestPeriodic_StopFromInsideFunc(t *testing.T) {
	var p *schedule.Periodic
	var calls atomic.Int32
	p = schedule.NewPeriodic(5*time.Millisecond, func(context.Context) {
		calls.Add(1)
		p.Stop()
	})

	p.Start(context.Background())
	assert.Eventually(t, func() bool { return !p.Running() }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPeriodic_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := schedule.NewPeriodic(time.Hour, func(context.Context) {})
	p.Start(ctx)
	cancel()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on context cancel")
	}
}

func TestPeriodic_Reset(t *testing.T) {
	var calls atomic.Int32
	p := schedule.NewPeriodic(time.Hour, func(context.Context) {
		calls.Add(1)
	})
	p.Start(context.Background())
	defer p.Stop()

	p.Reset(10 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, p.Interval())
	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestPeriodic_StartTwiceIsNoop(t *testing.T) {
	var calls atomic.Int32
	p := schedule.NewPeriodic(time.Hour, func(context.Context) {
		calls.Add(1)
	}, schedule.Immediately())

	p.Start(context.Background())
	p.Start(context.Background())
	defer p.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTimer_FiresOnce(t *testing.T) {
	var calls atomic.Int32
	tm := schedule.After(5*time.Millisecond, func() { calls.Add(1) })

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, tm.Stop(), "already fired")
}

func TestTimer_Stop(t *testing.T) {
	var calls atomic.Int32
	tm := schedule.After(20*time.Millisecond, func() { calls.Add(1) })

	assert.True(t, tm.Stop())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	var nilTimer *schedule.Timer
	assert.False(t, nilTimer.Stop())
}
