package traffic

import (
	"sort"
	"time"
)

// Defaults for the vehicle-count history window.
const (
	DefaultHistoryCapacity = 61
	DefaultHistoryBucket   = time.Minute
	TotalSeriesLabel       = "Total"
	historyLabelLayout     = "15:04"
)

// HistoryPoint is the vehicle count per intersection label at one instant.
type HistoryPoint struct {
	Time   time.Time      `json:"time"`
	Label  string         `json:"label"`
	Counts map[string]int `json:"counts"`
}

// NewHistoryPoint builds a point from intersections. Intersections that share
// a display label are summed.
func NewHistoryPoint(at time.Time, intersections []Intersection) HistoryPoint {
	counts := make(map[string]int, len(intersections))
	for _, in := range intersections {
		counts[in.Name] += in.VehicleCount
	}
	return HistoryPoint{Time: at, Label: at.Format(historyLabelLayout), Counts: counts}
}

func (p HistoryPoint) clone() HistoryPoint {
	counts := make(map[string]int, len(p.Counts))
	for k, v := range p.Counts {
		counts[k] = v
	}
	p.Counts = counts
	return p
}

// History is a fixed-capacity sliding window of points, oldest first. Once
// full, every append evicts the oldest point. History is not safe for
// concurrent use.
type History struct {
	capacity int
	points   []HistoryPoint
}

// NewHistory creates an empty window.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{capacity: capacity, points: make([]HistoryPoint, 0, capacity)}
}

// SeedHistory creates a full window whose points are spaced bucket apart and
// end at end, with every label at zero.
func SeedHistory(capacity int, end time.Time, bucket time.Duration, labels []string) *History {
	h := NewHistory(capacity)
	if bucket <= 0 {
		bucket = DefaultHistoryBucket
	}
	for i := h.capacity - 1; i >= 0; i-- {
		at := end.Add(-time.Duration(i) * bucket)
		counts := make(map[string]int, len(labels))
		for _, l := range labels {
			counts[l] = 0
		}
		h.points = append(h.points, HistoryPoint{Time: at, Label: at.Format(historyLabelLayout), Counts: counts})
	}
	return h
}

// Append adds p as the newest point, evicting the oldest if the window is full.
func (h *History) Append(p HistoryPoint) {
	p = p.clone()
	if len(h.points) < h.capacity {
		h.points = append(h.points, p)
		return
	}
	copy(h.points, h.points[1:])
	h.points[len(h.points)-1] = p
}

// Len returns the number of points held.
func (h *History) Len() int { return len(h.points) }

// Capacity returns the window size.
func (h *History) Capacity() int { return h.capacity }

// Points returns a deep copy of the window, oldest first.
func (h *History) Points() []HistoryPoint {
	out := make([]HistoryPoint, len(h.points))
	for i, p := range h.points {
		out[i] = p.clone()
	}
	return out
}

// SeriesPoint is one sample of a Series.
type SeriesPoint struct {
	Time  time.Time `json:"time"`
	Label string    `json:"label"`
	Count int       `json:"count"`
}

// Series is the history of a single label, aligned with the window.
type Series struct {
	Label  string        `json:"label"`
	Points []SeriesPoint `json:"points"`
}

// ProjectSeries turns a window into one series per label. Labels listed in
// order come first in that order, then any other labels alphabetically.
// A label absent from a point contributes zero at that point.
func ProjectSeries(points []HistoryPoint, order []string) []Series {
	seen := make(map[string]bool)
	labels := make([]string, 0, len(order))
	for _, l := range order {
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	var extra []string
	for _, p := range points {
		for l := range p.Counts {
			if !seen[l] {
				seen[l] = true
				extra = append(extra, l)
			}
		}
	}
	sort.Strings(extra)
	labels = append(labels, extra...)

	series := make([]Series, 0, len(labels))
	for _, l := range labels {
		s := Series{Label: l, Points: make([]SeriesPoint, len(points))}
		for i, p := range points {
			s.Points[i] = SeriesPoint{Time: p.Time, Label: p.Label, Count: p.Counts[l]}
		}
		series = append(series, s)
	}
	return series
}

// ProjectTotal sums every label of each point into a single series.
func ProjectTotal(points []HistoryPoint) Series {
	s := Series{Label: TotalSeriesLabel, Points: make([]SeriesPoint, len(points))}
	for i, p := range points {
		total := 0
		for _, c := range p.Counts {
			total += c
		}
		s.Points[i] = SeriesPoint{Time: p.Time, Label: p.Label, Count: total}
	}
	return s
}
