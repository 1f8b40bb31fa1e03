package traffic_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/smarttraffic/console/internal/notice"
	"github.com/smarttraffic/console/internal/traffic"
)

func newGateway(b traffic.Backend) (*traffic.Gateway, *recordingNotifier) {
	n := &recordingNotifier{}
	return traffic.NewGateway(traffic.GatewayConfig{Backend: b, Notifier: n, Logger: zerolog.Nop()}), n
}

func TestGateway_FetchSnapshotDegradesToEmpty(t *testing.T) {
	b := &fakeBackend{fetchErr: traffic.TransportError("fetch telemetry", 502, nil)}
	g, n := newGateway(b)

	assert.Empty(t, g.FetchSnapshot(context.Background()))
	assert.Equal(t, notice.LevelError, n.last().Level)
	assert.Equal(t, traffic.MsgFetchTrafficFailed, n.last().Message)
}

func TestGateway_FetchSnapshot(t *testing.T) {
	b := &fakeBackend{telemetry: []traffic.Telemetry{telemetry("int-001", 4, traffic.SignalRed)}}
	g, n := newGateway(b)

	got := g.FetchSnapshot(context.Background())
	assert.Len(t, got, 1)
	assert.Zero(t, n.count())
}

func TestGateway_SetSignal(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    bool
		level   notice.Level
		message string
	}{
		{"acknowledged", nil, true, notice.LevelSuccess, "Traffic signal updated to green"},
		{"rejected with message", traffic.RejectedError("set signal", "Invalid request parameters"), false, notice.LevelError, "Invalid request parameters"},
		{"rejected without message", traffic.RejectedError("set signal", ""), false, notice.LevelError, traffic.MsgSignalRejected},
		{"transport", traffic.TransportError("set signal", 0, errors.New("connection refused")), false, notice.LevelError, traffic.MsgSignalFailed},
		{"protocol", traffic.ProtocolError("set signal", errors.New("bad json")), false, notice.LevelError, traffic.MsgSignalFailed},
		{"unclassified", errors.New("boom"), false, notice.LevelError, traffic.MsgSignalFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, n := newGateway(&fakeBackend{signalErr: tt.err})
			assert.Equal(t, tt.want, g.SetSignal(context.Background(), "int-001", traffic.SignalGreen))
			assert.Equal(t, tt.level, n.last().Level)
			assert.Equal(t, tt.message, n.last().Message)
		})
	}
}

func TestGateway_SetAutoMode(t *testing.T) {
	g, n := newGateway(&fakeBackend{})
	assert.True(t, g.SetAutoMode(context.Background(), "int-001", true))
	assert.Equal(t, "Auto control mode enabled", n.last().Message)

	assert.True(t, g.SetAutoMode(context.Background(), "int-001", false))
	assert.Equal(t, "Auto control mode disabled", n.last().Message)

	g, n = newGateway(&fakeBackend{autoErr: traffic.TransportError("set auto mode", 500, nil)})
	assert.False(t, g.SetAutoMode(context.Background(), "int-001", true))
	assert.Equal(t, traffic.MsgAutoModeFailed, n.last().Message)
}

func TestGateway_TriggerViolationScan(t *testing.T) {
	g, n := newGateway(&fakeBackend{scanFound: 3})
	found, ok := g.TriggerViolationScan(context.Background(), "int-001")
	assert.True(t, found)
	assert.True(t, ok)
	assert.Equal(t, "Detected 3 traffic violation(s)!", n.last().Message)
	assert.Equal(t, notice.LevelSuccess, n.last().Level)

	g, n = newGateway(&fakeBackend{})
	found, ok = g.TriggerViolationScan(context.Background(), "int-001")
	assert.False(t, found)
	assert.True(t, ok, "a clean scan still succeeded")
	assert.Equal(t, traffic.MsgNoViolationsDetected, n.last().Message)
	assert.Equal(t, notice.LevelInfo, n.last().Level)

	g, n = newGateway(&fakeBackend{scanErr: traffic.TransportError("check violations", 0, errors.New("down"))})
	found, ok = g.TriggerViolationScan(context.Background(), "int-001")
	assert.False(t, found)
	assert.False(t, ok)
	assert.Equal(t, traffic.MsgViolationScanFailed, n.last().Message)
}

func TestGateway_FetchViolations(t *testing.T) {
	g, n := newGateway(&fakeBackend{violErr: traffic.ProtocolError("fetch violations", errors.New("eof"))})
	assert.Empty(t, g.FetchViolations(context.Background()))
	assert.Equal(t, traffic.MsgFetchViolationsFailed, n.last().Message)
}

func TestGateway_MediaFeedURL(t *testing.T) {
	b := &fakeBackend{}
	g, _ := newGateway(b)
	assert.Equal(t, "http://backend/api/video_feed/int-002", g.MediaFeedURL("int-002", 1))
	assert.Zero(t, b.fetchCalls.Load())
}
