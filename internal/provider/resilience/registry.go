package resilience

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health status values reported for an upstream.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ProviderHealth is a point-in-time view of one upstream the console calls.
type ProviderHealth struct {
	Name         string
	CircuitState gobreaker.State
	Counts       gobreaker.Counts

	// FailureStreak counts failed requests since the last success.
	FailureStreak int
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Status is unhealthy while the circuit is open. A half-open circuit or a
// failing streak below the trip threshold reads as degraded.
func (h *ProviderHealth) Status() string {
	switch {
	case h.CircuitState == gobreaker.StateOpen:
		return StatusUnhealthy
	case h.CircuitState == gobreaker.StateHalfOpen, h.FailureStreak > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Registry tracks the resilient clients of a process (traffic backend, media
// feed) and the outcome of their latest requests.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*tracked
	now     func() time.Time
}

type tracked struct {
	client      *Client
	streak      int
	lastSuccess time.Time
	lastFailure time.Time
	lastError   string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*tracked),
		now:     time.Now,
	}
}

// Register tracks client under name. A second registration under the same
// name starts from a clean record.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = &tracked{client: client}
}

// RecordSuccess ends the failure streak of name. Unknown names are ignored.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.clients[name]; ok {
		t.streak = 0
		t.lastSuccess = r.now()
	}
}

// RecordFailure extends the failure streak of name and keeps err's text.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.clients[name]
	if !ok {
		return
	}
	t.streak++
	t.lastFailure = r.now()
	if err != nil {
		t.lastError = err.Error()
	}
}

// GetHealth returns the health of one upstream, or nil if it is not registered.
func (r *Registry) GetHealth(name string) *ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.clients[name]
	if !ok {
		return nil
	}
	return t.snapshot(name)
}

// GetAllHealth returns the health of every upstream, ordered by name.
func (r *Registry) GetAllHealth() []*ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ProviderHealth, 0, len(r.clients))
	for name, t := range r.clients {
		out = append(out, t.snapshot(name))
	}
	slices.SortFunc(out, func(a, b *ProviderHealth) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (t *tracked) snapshot(name string) *ProviderHealth {
	h := &ProviderHealth{
		Name:          name,
		CircuitState:  t.client.CircuitBreakerState(),
		Counts:        t.client.CircuitBreakerCounts(),
		FailureStreak: t.streak,
		LastError:     t.lastError,
	}
	if !t.lastSuccess.IsZero() {
		at := t.lastSuccess
		h.LastSuccessAt = &at
	}
	if !t.lastFailure.IsZero() {
		at := t.lastFailure
		h.LastFailureAt = &at
	}
	return h
}
