// Package api provides the HTTP API of the traffic console.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/smarttraffic/console/internal/api/handler"
	"github.com/smarttraffic/console/internal/api/middleware"
	"github.com/smarttraffic/console/internal/archive"
	"github.com/smarttraffic/console/internal/notice"
	"github.com/smarttraffic/console/internal/provider/resilience"
	"github.com/smarttraffic/console/internal/traffic"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Traffic  handler.Traffic
	Feeds    handler.Feeds
	Notices  *notice.Center
	Registry *resilience.Registry

	// Directory lists the configured intersections. Feeds for other ids can
	// be activated once the backend has reported them.
	Directory *traffic.Directory

	// Archive is optional; the archive routes are mounted only when set.
	Archive archive.Repository
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "traffic-console"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Traffic, cfg.Feeds, cfg.Registry)
	intersectionHandler := handler.NewIntersectionHandler(cfg.Traffic)
	historyHandler := handler.NewHistoryHandler(cfg.Traffic)
	violationHandler := handler.NewViolationHandler(cfg.Traffic)
	streamHandler := handler.NewStreamHandler(cfg.Traffic, cfg.Feeds, cfg.Notices, cfg.Logger)

	commandRateLimit := middleware.RateLimitByIP(middleware.CommandRateLimit)
	scanRateLimit := middleware.RateLimitByIP(middleware.ScanRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/intersections", func(r chi.Router) {
			r.Get("/", intersectionHandler.ListIntersections)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", intersectionHandler.GetIntersection)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireJSON)
					r.Use(commandRateLimit)
					r.Post("/signal", intersectionHandler.SetSignal)
					r.Post("/auto-mode", intersectionHandler.SetAutoMode)
				})
				r.With(scanRateLimit).Post("/violation-checks", intersectionHandler.CheckViolations)
			})
		})

		r.Get("/history", historyHandler.GetHistory)
		r.Get("/history/series", historyHandler.GetSeries)

		r.Get("/violations", violationHandler.ListViolations)
		r.With(middleware.RequireJSON, scanRateLimit).Post("/violation-checks", violationHandler.CheckViolations)

		if cfg.Notices != nil {
			noticeHandler := handler.NewNoticeHandler(cfg.Notices)
			r.Get("/notices", noticeHandler.ListNotices)
		}

		if cfg.Feeds != nil {
			feedHandler := handler.NewFeedHandler(cfg.Feeds, cfg.Traffic, cfg.Directory)
			r.Route("/feeds", func(r chi.Router) {
				r.Get("/", feedHandler.ListFeeds)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", feedHandler.GetFeed)
					r.Get("/frame", feedHandler.GetFrame)

					r.Group(func(r chi.Router) {
						r.Use(middleware.RequireJSON)
						r.Use(commandRateLimit)
						r.Put("/", feedHandler.ActivateFeed)
						r.Delete("/", feedHandler.DeactivateFeed)
						r.Post("/retry", feedHandler.RetryFeed)
						r.Put("/quality", feedHandler.SetQuality)
					})
				})
			})
		}

		if cfg.Archive != nil {
			archiveHandler := handler.NewArchiveHandler(cfg.Archive, cfg.Logger)
			r.Route("/archive", func(r chi.Router) {
				r.Get("/history", archiveHandler.ListHistory)
				r.Get("/violations", archiveHandler.ListViolations)
			})
		}

		r.Get("/stream", streamHandler.Stream)
	})

	return r
}
