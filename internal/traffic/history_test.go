package traffic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/console/internal/traffic"
)

func TestSeedHistory(t *testing.T) {
	end := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := traffic.SeedHistory(61, end, time.Minute, []string{"Main Street", "Park Avenue"})

	points := h.Points()
	require.Len(t, points, 61)
	assert.Equal(t, "11:00", points[0].Label)
	assert.Equal(t, "12:00", points[60].Label)
	for _, p := range points {
		assert.Equal(t, map[string]int{"Main Street": 0, "Park Avenue": 0}, p.Counts)
	}
}

func TestHistory_AppendEvictsOldest(t *testing.T) {
	end := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := traffic.SeedHistory(3, end, time.Minute, nil)
	oldest := h.Points()[0]

	at := end.Add(time.Minute)
	h.Append(traffic.NewHistoryPoint(at, []traffic.Intersection{
		{ID: "int-001", Name: "Main Street", VehicleCount: 7},
		{ID: "int-002", Name: "Park Avenue", VehicleCount: 11},
	}))

	points := h.Points()
	require.Len(t, points, 3)
	assert.NotEqual(t, oldest.Time, points[0].Time)
	assert.Equal(t, map[string]int{"Main Street": 7, "Park Avenue": 11}, points[2].Counts)
	assert.Equal(t, "12:01", points[2].Label)
}

func TestHistory_GrowsToCapacity(t *testing.T) {
	h := traffic.NewHistory(2)
	assert.Equal(t, 0, h.Len())

	now := time.Now()
	h.Append(traffic.HistoryPoint{Time: now, Counts: map[string]int{"a": 1}})
	h.Append(traffic.HistoryPoint{Time: now, Counts: map[string]int{"a": 2}})
	h.Append(traffic.HistoryPoint{Time: now, Counts: map[string]int{"a": 3}})

	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 2, h.Capacity())
	assert.Equal(t, 3, h.Points()[1].Counts["a"])
}

func TestHistory_PointsAreCopies(t *testing.T) {
	h := traffic.NewHistory(2)
	h.Append(traffic.HistoryPoint{Counts: map[string]int{"a": 1}})

	p := h.Points()
	p[0].Counts["a"] = 99
	assert.Equal(t, 1, h.Points()[0].Counts["a"])
}

func TestNewHistoryPoint_SumsSharedLabels(t *testing.T) {
	p := traffic.NewHistoryPoint(time.Now(), []traffic.Intersection{
		{ID: "x-1", Name: traffic.UnknownIntersectionName, VehicleCount: 2},
		{ID: "x-2", Name: traffic.UnknownIntersectionName, VehicleCount: 5},
	})
	assert.Equal(t, 7, p.Counts[traffic.UnknownIntersectionName])
}

func TestProjectSeries(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	points := []traffic.HistoryPoint{
		{Time: t0, Label: "12:00", Counts: map[string]int{"B": 1}},
		{Time: t0.Add(time.Minute), Label: "12:01", Counts: map[string]int{"A": 2, "B": 3, "Z": 4}},
	}

	series := traffic.ProjectSeries(points, []string{"B", "A", "B"})
	require.Len(t, series, 3)
	assert.Equal(t, "B", series[0].Label)
	assert.Equal(t, "A", series[1].Label)
	assert.Equal(t, "Z", series[2].Label)

	assert.Equal(t, 0, series[1].Points[0].Count, "missing label counts as zero")
	assert.Equal(t, 2, series[1].Points[1].Count)
	assert.Equal(t, "12:01", series[2].Points[1].Label)

	// Pure: same input, same output.
	assert.Equal(t, series, traffic.ProjectSeries(points, []string{"B", "A"}))

	total := traffic.ProjectTotal(points)
	assert.Equal(t, traffic.TotalSeriesLabel, total.Label)
	assert.Equal(t, 1, total.Points[0].Count)
	assert.Equal(t, 9, total.Points[1].Count)
}
