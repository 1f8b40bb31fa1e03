// Package main runs the operator's terminal dashboard against the console core.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/smarttraffic/console/internal/app"
	"github.com/smarttraffic/console/internal/config"
	"github.com/smarttraffic/console/internal/tui"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	logPath := flag.String("log", "dashboard.log", "file receiving the dashboard's logs")
	flag.Parse()

	if err := run(*logPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(logPath string) error {
	// The terminal belongs to the dashboard; logs go to a file.
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	log := zerolog.New(logFile).
		With().
		Timestamp().
		Str("service", "traffic-dashboard").
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	console, err := app.New(ctx, cfg, app.Options{Logger: log})
	if err != nil {
		return err
	}
	defer console.Close()

	model := tui.New(tui.Config{
		Traffic: console.Sync,
		Feeds:   console.Feeds,
		Notices: console.Notices,
	})
	defer model.Close()

	console.Start(ctx)

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("running dashboard: %w", err)
	}
	return nil
}
