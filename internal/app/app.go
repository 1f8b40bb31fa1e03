// Package app assembles the console core from configuration. Both the API
// server and the terminal dashboard run on it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/smarttraffic/console/internal/archive"
	"github.com/smarttraffic/console/internal/config"
	"github.com/smarttraffic/console/internal/database"
	"github.com/smarttraffic/console/internal/media"
	"github.com/smarttraffic/console/internal/notice"
	"github.com/smarttraffic/console/internal/provider/resilience"
	"github.com/smarttraffic/console/internal/telemetry"
	"github.com/smarttraffic/console/internal/traffic"
	"github.com/smarttraffic/console/internal/traffic/backend"
	"github.com/smarttraffic/console/internal/traffic/fixture"
)

// Options holds what the caller provides besides configuration.
type Options struct {
	Logger zerolog.Logger

	// Meter receives console metrics. Nil uses the global meter provider.
	Meter metric.Meter

	// HTTPClient overrides the resilient client used for the backend and the
	// camera feeds.
	HTTPClient *http.Client
}

// Console is the assembled core.
type Console struct {
	Config    config.Config
	Directory *traffic.Directory
	Notices   *notice.Center
	Registry  *resilience.Registry
	Sync      *traffic.Synchronizer
	Feeds     *media.Controller
	// Archive is nil when archiving is off.
	Archive archive.Repository

	logger zerolog.Logger
	pool   *pgxpool.Pool
}

// New builds the console from cfg. Nothing runs until Start is called.
func New(ctx context.Context, cfg config.Config, opts Options) (*Console, error) {
	c := &Console{
		Config:    cfg,
		Directory: traffic.NewDirectory(cfg.Intersections),
		Notices:   notice.NewCenter(notice.CenterConfig{Logger: opts.Logger}),
		Registry:  resilience.NewRegistry(),
		logger:    opts.Logger,
	}

	metrics, err := telemetry.NewConsoleMetrics(opts.Meter)
	if err != nil {
		return nil, fmt.Errorf("creating console metrics: %w", err)
	}

	var (
		source traffic.Backend
		loader media.Loader
	)
	switch cfg.DataSource {
	case config.SourceFixture:
		fx := fixture.New(fixture.Config{Directory: c.Directory})
		source = fx
		loader = media.SourceLoader(fx)
	default:
		bc := backend.ClientConfig{
			BaseURL:  cfg.APIURL,
			Registry: c.Registry,
			Timeout:  cfg.APITimeout,
		}
		lc := media.HTTPLoaderConfig{Registry: c.Registry}
		if opts.HTTPClient != nil {
			bc.HTTPClient = opts.HTTPClient
			lc.HTTPClient = opts.HTTPClient
		}
		source = backend.NewClient(bc)
		loader = media.NewHTTPLoader(lc)
	}

	if err := c.openArchive(ctx); err != nil {
		return nil, err
	}

	overlap := traffic.OverlapAllow
	if cfg.SkipOverlap {
		overlap = traffic.OverlapSkip
	}
	gateway := traffic.NewGateway(traffic.GatewayConfig{
		Backend:  source,
		Notifier: c.Notices,
		Logger:   opts.Logger.With().Str("component", "gateway").Logger(),
	})
	syncCfg := traffic.SynchronizerConfig{
		Gateway:         gateway,
		Directory:       c.Directory,
		Notifier:        c.Notices,
		Logger:          opts.Logger.With().Str("component", "synchronizer").Logger(),
		PollInterval:    cfg.PollInterval,
		HistoryCapacity: cfg.HistoryCapacity,
		Overlap:         overlap,
		GuardStalePolls: cfg.GuardStalePolls,
		Metrics:         metrics,
	}
	if c.Archive != nil {
		syncCfg.Recorder = c.Archive
	}
	c.Sync = traffic.NewSynchronizer(syncCfg)

	c.Feeds = media.NewController(media.Config{
		Locator:     c.Sync.MediaFeedURL,
		Loader:      loader,
		Notifier:    c.Notices,
		Logger:      opts.Logger.With().Str("component", "media").Logger(),
		Metrics:     metrics,
		GracePeriod: cfg.FeedGracePeriod,
		Quality:     cfg.FeedQuality,
	})

	return c, nil
}

func (c *Console) openArchive(ctx context.Context) error {
	switch c.Config.Archive {
	case config.ArchiveMemory:
		c.Archive = archive.NewInMemoryRepository(0)
	case config.ArchivePostgres:
		pool, err := database.Connect(ctx, c.Config.Database, c.logger)
		if err != nil {
			return fmt.Errorf("connecting archive database: %w", err)
		}
		if err := database.Migrate(ctx, pool, archive.Schema); err != nil {
			pool.Close()
			return fmt.Errorf("migrating archive schema: %w", err)
		}
		c.pool = pool
		c.Archive = archive.NewPostgresRepository(pool)
		c.logger.Info().
			Str("host", c.Config.Database.Host).
			Str("database", c.Config.Database.Database).
			Msg("archive database connected")
	}
	return nil
}

// Start begins polling and opens a camera feed for every configured
// intersection.
func (c *Console) Start(ctx context.Context) {
	c.Sync.Start(ctx)
	for _, id := range c.Directory.IDs() {
		if err := c.Feeds.Activate(id); err != nil {
			c.logger.Warn().Err(err).Str("intersection_id", id).Msg("failed to open camera feed")
		}
	}
}

// Close stops polling, tears down every feed and releases the archive.
func (c *Console) Close() {
	c.Sync.Stop()
	c.Feeds.Close()
	if c.pool != nil {
		c.pool.Close()
	}
}

// WaitReady blocks until the first synchronization cycle has succeeded.
func (c *Console) WaitReady(ctx context.Context, poll time.Duration) error {
	t := time.NewTicker(poll)
	defer t.Stop()
	for c.Sync.Status().Cycles == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
