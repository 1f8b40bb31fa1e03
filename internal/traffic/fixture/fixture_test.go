package fixture_test

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/console/internal/traffic"
	"github.com/smarttraffic/console/internal/traffic/fixture"
)

func TestBackend_FetchTelemetry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := fixture.New(fixture.Config{Seed: 42, Now: func() time.Time { return now }})

	records, err := b.FetchTelemetry(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 4)

	for _, r := range records {
		assert.GreaterOrEqual(t, r.VehicleCount, 1)
		assert.LessOrEqual(t, r.VehicleCount, 20)
		require.NotNil(t, r.Status)
		assert.True(t, r.Status.Valid())
		require.NotNil(t, r.AutoMode)
		assert.False(t, *r.AutoMode)
		assert.Equal(t, now, r.Timestamp)
	}
	assert.Equal(t, "int-001", records[0].IntersectionID)
}

func TestBackend_SignalAndAutoMode(t *testing.T) {
	ctx := context.Background()
	b := fixture.New(fixture.Config{Seed: 7, Intersections: []string{"int-001"}})

	require.NoError(t, b.SetSignal(ctx, "int-001", traffic.SignalYellow))
	records, err := b.FetchTelemetry(ctx)
	require.NoError(t, err)
	assert.Equal(t, traffic.SignalYellow, *records[0].Status)

	require.NoError(t, b.SetAutoMode(ctx, "int-001", true))
	records, err = b.FetchTelemetry(ctx)
	require.NoError(t, err)
	assert.True(t, *records[0].AutoMode)

	err = b.SetSignal(ctx, "int-999", traffic.SignalRed)
	var be *traffic.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, traffic.KindRejected, be.Kind)
}

func TestBackend_Violations(t *testing.T) {
	ctx := context.Background()
	b := fixture.New(fixture.Config{Seed: 3})

	total := 0
	for i := 0; i < 20; i++ {
		n, err := b.CheckViolations(ctx, "int-002")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 0)
		assert.LessOrEqual(t, n, 2)
		total += n
	}

	violations, err := b.FetchViolations(ctx)
	require.NoError(t, err)
	assert.Len(t, violations, total)
	for _, v := range violations {
		assert.NotEmpty(t, v.ID)
		assert.True(t, v.Type.Known())
		assert.Equal(t, "Broadway & 42nd St", v.Location)
		assert.Regexp(t, `^[A-Z]{3}-\d{4}$`, v.VehicleNumber)
	}

	_, err = b.CheckViolations(ctx, "nope")
	assert.Error(t, err)
}

func TestBackend_Frame(t *testing.T) {
	ctx := context.Background()
	b := fixture.New(fixture.Config{Seed: 1})

	locator := b.MediaFeedURL("int-003", 0.5)
	assert.Equal(t, "fixture://video_feed/int-003?fps=0.5", locator)

	data, contentType, err := b.Frame(ctx, locator+"&t=123")
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())

	_, _, err = b.Frame(ctx, "fixture://video_feed/int-404?fps=1")
	assert.Error(t, err)
	_, _, err = b.Frame(ctx, "http://example.com/feed")
	assert.Error(t, err)
}
