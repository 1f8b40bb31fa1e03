package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/console/internal/provider/resilience"
)

func registered(t *testing.T, names ...string) *resilience.Registry {
	t.Helper()
	registry := resilience.NewRegistry()
	for _, name := range names {
		cfg := resilience.DefaultClientConfig(name)
		cfg.Registry = registry
		require.Equal(t, name, resilience.NewClient(cfg).Name())
	}
	return registry
}

func TestRegistry_NewClientRegisters(t *testing.T) {
	registry := registered(t, "traffic-backend")

	health := registry.GetHealth("traffic-backend")
	require.NotNil(t, health)
	assert.Equal(t, "traffic-backend", health.Name)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.Equal(t, resilience.StatusHealthy, health.Status())
	assert.Zero(t, health.FailureStreak)
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
}

func TestRegistry_FailureStreak(t *testing.T) {
	registry := registered(t, "traffic-backend")

	registry.RecordFailure("traffic-backend", assert.AnError)
	registry.RecordFailure("traffic-backend", errors.New("connection refused"))

	health := registry.GetHealth("traffic-backend")
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Equal(t, 2, health.FailureStreak)
	assert.Equal(t, "connection refused", health.LastError)
	assert.Equal(t, resilience.StatusDegraded, health.Status())

	registry.RecordSuccess("traffic-backend")

	health = registry.GetHealth("traffic-backend")
	require.NotNil(t, health.LastSuccessAt)
	assert.Zero(t, health.FailureStreak)
	assert.Equal(t, resilience.StatusHealthy, health.Status())
	// The last error stays visible after recovery.
	assert.Equal(t, "connection refused", health.LastError)
}

func TestRegistry_RecordFailureWithoutError(t *testing.T) {
	registry := registered(t, "media-feed")

	registry.RecordFailure("media-feed", assert.AnError)
	registry.RecordFailure("media-feed", nil)

	health := registry.GetHealth("media-feed")
	assert.Equal(t, 2, health.FailureStreak)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
}

func TestRegistry_ReRegisterResets(t *testing.T) {
	registry := registered(t, "media-feed")
	registry.RecordFailure("media-feed", assert.AnError)

	cfg := resilience.DefaultClientConfig("media-feed")
	cfg.Registry = registry
	_ = resilience.NewClient(cfg)

	health := registry.GetHealth("media-feed")
	assert.Zero(t, health.FailureStreak)
	assert.Empty(t, health.LastError)
}

func TestRegistry_GetAllHealthSorted(t *testing.T) {
	registry := registered(t, "traffic-backend", "media-feed", "archive")

	all := registry.GetAllHealth()
	require.Len(t, all, 3)
	names := make([]string, 0, len(all))
	for _, h := range all {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"archive", "media-feed", "traffic-backend"}, names)
}

func TestRegistry_UnknownNames(t *testing.T) {
	registry := resilience.NewRegistry()

	assert.NotPanics(t, func() {
		registry.RecordSuccess("nonexistent")
		registry.RecordFailure("nonexistent", assert.AnError)
	})
	assert.Nil(t, registry.GetHealth("nonexistent"))
	assert.Empty(t, registry.GetAllHealth())
}

func TestProviderHealth_Status(t *testing.T) {
	tests := []struct {
		name   string
		state  gobreaker.State
		streak int
		want   string
	}{
		{"closed", gobreaker.StateClosed, 0, resilience.StatusHealthy},
		{"closed but failing", gobreaker.StateClosed, 3, resilience.StatusDegraded},
		{"half open", gobreaker.StateHalfOpen, 0, resilience.StatusDegraded},
		{"open", gobreaker.StateOpen, 5, resilience.StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &resilience.ProviderHealth{CircuitState: tt.state, FailureStreak: tt.streak}
			assert.Equal(t, tt.want, h.Status())
		})
	}
}
