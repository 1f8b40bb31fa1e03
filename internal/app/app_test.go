package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/console/internal/app"
	"github.com/smarttraffic/console/internal/config"
	"github.com/smarttraffic/console/internal/media"
)

func fixtureConfig() config.Config {
	cfg := config.Default()
	cfg.DataSource = config.SourceFixture
	cfg.PollInterval = time.Hour
	return cfg
}

func TestNew_FixtureConsole(t *testing.T) {
	c, err := app.New(context.Background(), fixtureConfig(), app.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.NotNil(t, c.Archive)
	c.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.WaitReady(ctx, 5*time.Millisecond))

	assert.Len(t, c.Sync.Intersections(), 4)
	assert.Eventually(t, func() bool {
		states := c.Feeds.States()
		if len(states) != 4 {
			return false
		}
		for _, s := range states {
			if s.Phase != media.PhaseReady {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNew_ArchiveOff(t *testing.T) {
	cfg := fixtureConfig()
	cfg.Archive = config.ArchiveOff

	c, err := app.New(context.Background(), cfg, app.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.Nil(t, c.Archive)
}

func TestNew_BackendFailuresRaiseNotices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.APIURL = srv.URL
	cfg.Archive = config.ArchiveOff

	c, err := app.New(context.Background(), cfg, app.Options{Logger: zerolog.Nop(), HTTPClient: srv.Client()})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.False(t, c.Sync.Refresh(context.Background()))
	assert.NotEmpty(t, c.Notices.Recent(0))
	assert.Equal(t, int64(1), c.Sync.Status().FailedCycles)
}

func TestWaitReady_Cancelled(t *testing.T) {
	c, err := app.New(context.Background(), fixtureConfig(), app.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.WaitReady(ctx, time.Millisecond), context.Canceled)
}
