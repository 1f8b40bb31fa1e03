package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/smarttraffic/console/internal/api/models"
	"github.com/smarttraffic/console/internal/api/response"
	"github.com/smarttraffic/console/internal/media"
	"github.com/smarttraffic/console/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	traffic   Traffic
	feeds     Feeds
	registry  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler. registry may be nil.
func NewOpsHandler(version, buildTime string, t Traffic, feeds Feeds, registry *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		traffic:   t,
		feeds:     feeds,
		registry:  registry,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The console is ready once the
// first synchronization cycle has finished, whatever its outcome.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := h.traffic.Status()
	if status.Cycles == 0 {
		response.ServiceUnavailable(w, r, "waiting for the first synchronization")
		return
	}
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	})
}

// SystemStatus handles GET /v1/ops/status - synchronizer, feed and upstream status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	sync := h.traffic.Status()

	subsystems := []models.SubsystemStatus{syncSubsystem(sync.Running, sync.Error)}
	if h.feeds != nil {
		subsystems = append(subsystems, feedSubsystem(h.feeds.States()))
	}

	var providers []models.ProviderStatus
	if h.registry != nil {
		for _, health := range h.registry.GetAllHealth() {
			providers = append(providers, providerStatus(health))
		}
	}

	overall := models.HealthStatusOK
	for _, s := range subsystems {
		overall = worst(overall, s.Status)
	}
	for _, p := range providers {
		overall = worst(overall, p.Status)
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:     overall,
		Time:       models.Timestamp(time.Now()),
		Sync:       sync,
		Subsystems: subsystems,
		Providers:  providers,
	})
}

func syncSubsystem(running bool, lastErr string) models.SubsystemStatus {
	s := models.SubsystemStatus{Name: "synchronizer", Status: models.HealthStatusOK}
	switch {
	case !running:
		s.Status = models.HealthStatusFail
		detail := "not running"
		s.Detail = &detail
	case lastErr != "":
		s.Status = models.HealthStatusDegraded
		s.Detail = &lastErr
	}
	return s
}

func feedSubsystem(states []media.FeedState) models.SubsystemStatus {
	s := models.SubsystemStatus{Name: "camera-feeds", Status: models.HealthStatusOK}
	failed := 0
	for _, st := range states {
		if st.Phase == media.PhaseError {
			failed++
		}
	}
	if failed > 0 {
		s.Status = models.HealthStatusDegraded
		detail := "feeds in error: " + strconv.Itoa(failed)
		s.Detail = &detail
	}
	return s
}

func providerStatus(h *resilience.ProviderHealth) models.ProviderStatus {
	p := models.ProviderStatus{
		Provider:      h.Name,
		CircuitState:  h.CircuitState.String(),
		FailureStreak: h.FailureStreak,
	}
	switch h.Status() {
	case resilience.StatusHealthy:
		p.Status = models.HealthStatusOK
	case resilience.StatusDegraded:
		p.Status = models.HealthStatusDegraded
	default:
		p.Status = models.HealthStatusFail
	}
	if h.LastSuccessAt != nil {
		ts := models.Timestamp(*h.LastSuccessAt)
		p.LastSuccessAt = &ts
	}
	if h.LastFailureAt != nil {
		ts := models.Timestamp(*h.LastFailureAt)
		p.LastFailureAt = &ts
	}
	if h.LastError != "" {
		msg := h.LastError
		p.Message = &msg
	}
	return p
}

var severity = map[models.HealthStatus]int{
	models.HealthStatusOK:       0,
	models.HealthStatusDegraded: 1,
	models.HealthStatusFail:     2,
}

func worst(a, b models.HealthStatus) models.HealthStatus {
	if severity[b] > severity[a] {
		return b
	}
	return a
}
