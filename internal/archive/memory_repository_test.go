package archive_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/console/internal/archive"
	"github.com/smarttraffic/console/internal/traffic"
)

func TestInMemoryRepository_History(t *testing.T) {
	ctx := context.Background()
	repo := archive.NewInMemoryRepository(3)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := range 4 {
		require.NoError(t, repo.RecordHistory(ctx, traffic.HistoryPoint{
			Time:   t0.Add(time.Duration(i) * time.Minute),
			Counts: map[string]int{"Main Street": i},
		}))
	}

	points, err := repo.ListHistory(ctx, archive.ListOptions{})
	require.NoError(t, err)
	require.Len(t, points, 3, "oldest point evicted at capacity")
	assert.Equal(t, 3, points[0].Counts["Main Street"], "newest first")
	assert.Equal(t, 1, points[2].Counts["Main Street"])

	points, err = repo.ListHistory(ctx, archive.ListOptions{Since: t0.Add(2 * time.Minute), Limit: 10})
	require.NoError(t, err)
	assert.Len(t, points, 2)

	points, err = repo.ListHistory(ctx, archive.ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestInMemoryRepository_HistoryIsCopied(t *testing.T) {
	ctx := context.Background()
	repo := archive.NewInMemoryRepository(0)
	counts := map[string]int{"a": 1}

	require.NoError(t, repo.RecordHistory(ctx, traffic.HistoryPoint{Counts: counts}))
	counts["a"] = 99

	points, err := repo.ListHistory(ctx, archive.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, points[0].Counts["a"])
}

func TestInMemoryRepository_Violations(t *testing.T) {
	ctx := context.Background()
	repo := archive.NewInMemoryRepository(0)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := []traffic.Violation{
		{ID: "v1", VehicleNumber: "ABC-1234", Type: traffic.ViolationSpeeding, Timestamp: t0},
		{ID: "v2", VehicleNumber: "XYZ-9876", Type: traffic.ViolationRedLight, Timestamp: t0.Add(time.Minute)},
	}
	require.NoError(t, repo.RecordViolations(ctx, first))

	// The backend returns the full list on every fetch; duplicates are ignored.
	second := append([]traffic.Violation{{ID: "v3", Timestamp: t0.Add(2 * time.Minute)}}, first...)
	second[1].Location = "changed"
	require.NoError(t, repo.RecordViolations(ctx, second))

	got, err := repo.ListViolations(ctx, archive.ListOptions{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"v3", "v2", "v1"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Empty(t, got[2].Location)

	got, err = repo.ListViolations(ctx, archive.ListOptions{Since: t0.Add(time.Minute), Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v3", got[0].ID)
}
