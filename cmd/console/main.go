// Package main provides the entrypoint for the traffic console API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/smarttraffic/console/internal/api"
	"github.com/smarttraffic/console/internal/api/middleware"
	"github.com/smarttraffic/console/internal/app"
	"github.com/smarttraffic/console/internal/config"
	"github.com/smarttraffic/console/internal/telemetry"
	"github.com/smarttraffic/console/internal/trigger"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "traffic-console"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("console stopped with error")
	}
	log.Info().Msg("console stopped")
}

func run(log zerolog.Logger) error {
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting traffic console")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.OTelEnabled {
		log.Info().Str("otlp_endpoint", cfg.OTelEndpoint).Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		return err
	}

	console, err := app.New(ctx, cfg, app.Options{Logger: log, Meter: tp.Meter})
	if err != nil {
		return err
	}
	defer console.Close()

	log.Info().
		Str("data_source", cfg.DataSource).
		Str("archive", cfg.Archive).
		Dur("poll_interval", cfg.PollInterval).
		Int("intersections", len(cfg.Intersections)).
		Msg("console assembled")

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		RequireTLS:  cfg.RequireTLS,
		Traffic:     console.Sync,
		Feeds:       console.Feeds,
		Notices:     console.Notices,
		Registry:    console.Registry,
		Archive:     console.Archive,
		Directory:   console.Directory,
	})

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// The stream endpoint holds connections open; its writes carry
		// their own deadlines.
		IdleTimeout: 60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	console.Start(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.PubSubProjectID != "" {
		sub, err := trigger.NewSubscriber(ctx, trigger.SubscriberConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			Target:           console.Sync,
			Logger:           log.With().Str("component", "trigger").Logger(),
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := sub.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close trigger subscriber")
			}
		}()
		g.Go(func() error {
			return sub.Start(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
