package archive

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/smarttraffic/console/internal/traffic"
)

// DefaultMemoryCapacity bounds the points kept by an InMemoryRepository (a
// day of one-minute buckets).
const DefaultMemoryCapacity = 1440

// InMemoryRepository is an in-memory implementation of Repository. It keeps
// the most recent points up to its capacity and every distinct violation.
type InMemoryRepository struct {
	mu         sync.RWMutex
	capacity   int
	points     []traffic.HistoryPoint
	violations map[string]traffic.Violation
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates an empty repository. A non-positive capacity
// uses DefaultMemoryCapacity.
func NewInMemoryRepository(capacity int) *InMemoryRepository {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &InMemoryRepository{
		capacity:   capacity,
		violations: make(map[string]traffic.Violation),
	}
}

// RecordHistory stores a history point.
func (r *InMemoryRepository) RecordHistory(_ context.Context, point traffic.HistoryPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	point.Counts = maps.Clone(point.Counts)
	r.points = append(r.points, point)
	if over := len(r.points) - r.capacity; over > 0 {
		r.points = append(r.points[:0:0], r.points[over:]...)
	}
	return nil
}

// RecordViolations stores violations not seen before.
func (r *InMemoryRepository) RecordViolations(_ context.Context, violations []traffic.Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range violations {
		if _, ok := r.violations[v.ID]; !ok {
			r.violations[v.ID] = v
		}
	}
	return nil
}

// ListHistory returns archived history points, newest first.
func (r *InMemoryRepository) ListHistory(_ context.Context, opts ListOptions) ([]traffic.HistoryPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := opts.limit()
	out := make([]traffic.HistoryPoint, 0, min(limit, len(r.points)))
	for i := len(r.points) - 1; i >= 0 && len(out) < limit; i-- {
		p := r.points[i]
		if !opts.Since.IsZero() && p.Time.Before(opts.Since) {
			continue
		}
		p.Counts = maps.Clone(p.Counts)
		out = append(out, p)
	}
	return out, nil
}

// ListViolations returns archived violations, newest first.
func (r *InMemoryRepository) ListViolations(_ context.Context, opts ListOptions) ([]traffic.Violation, error) {
	r.mu.RLock()
	all := make([]traffic.Violation, 0, len(r.violations))
	for _, v := range r.violations {
		if !opts.Since.IsZero() && v.Timestamp.Before(opts.Since) {
			continue
		}
		all = append(all, v)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].ID < all[j].ID
		}
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if limit := opts.limit(); len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
