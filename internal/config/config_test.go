package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/console/internal/config"
	"github.com/smarttraffic/console/internal/media"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(config.FileEnv, "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.APIURL)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 61, cfg.HistoryCapacity)
	assert.Equal(t, 5*time.Second, cfg.FeedGracePeriod)
	assert.Equal(t, media.QualityMedium, cfg.FeedQuality)
	assert.Equal(t, config.SourceBackend, cfg.DataSource)
	assert.Equal(t, config.ArchiveMemory, cfg.Archive)
	assert.Len(t, cfg.Intersections, 4)
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.RequireTLS)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: http://traffic.local:5000
poll_interval: 5s
feed_quality: low
guard_stale_polls: true
intersections:
  int-001: Main Street
  int-002: Park Avenue
`), 0o600))

	t.Setenv(config.FileEnv, path)
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("DATA_SOURCE", "fixture")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://traffic.local:5000", cfg.APIURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval, "environment wins over the file")
	assert.Equal(t, media.QualityLow, cfg.FeedQuality)
	assert.True(t, cfg.GuardStalePolls)
	assert.Equal(t, config.SourceFixture, cfg.DataSource)
	assert.Equal(t, map[string]string{"int-001": "Main Street", "int-002": "Park Avenue"}, cfg.Intersections)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"POLL_INTERVAL": "soon"}},
		{"zero capacity", map[string]string{"HISTORY_CAPACITY": "0"}},
		{"bad capacity", map[string]string{"HISTORY_CAPACITY": "many"}},
		{"unknown quality", map[string]string{"FEED_QUALITY": "ultra"}},
		{"unknown source", map[string]string{"DATA_SOURCE": "kafka"}},
		{"unknown archive", map[string]string{"ARCHIVE": "s3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(config.FileEnv, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv(config.FileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_RequireTLS(t *testing.T) {
	t.Setenv(config.FileEnv, "")

	t.Setenv("APP_ENV", "production")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.RequireTLS, "production requires TLS by default")

	t.Setenv("REQUIRE_TLS", "false")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.False(t, cfg.RequireTLS)
}
