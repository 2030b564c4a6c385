package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/snappic/server/internal/config"
	"github.com/snappic/server/internal/gallery"
	"github.com/snappic/server/internal/handlers"
	"github.com/snappic/server/internal/observability"
	"github.com/urfave/cli/v2"
)

func main() {
	defaults, err := config.LoadViewer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	app := &cli.App{
		Name:    "snappic-viewer",
		Usage:   "follow a snappic gallery and log photos as they appear, fade and leave",
		Version: handlers.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "base URL of the snappic server",
				Value:   defaults.ServerURL,
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "time between listing fetches",
				Value: defaults.PollInterval(),
			},
			&cli.DurationFlag{
				Name:  "removal-fade",
				Usage: "exit transition length before an element is removed",
				Value: defaults.RemovalFade(),
			},
			&cli.BoolFlag{
				Name:  "notify",
				Usage: "also listen on the server's websocket feed and poll as soon as the gallery changes",
				Value: defaults.Notify,
			},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		observability.Errorf("Viewer failed: %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx := c.Context
	logger := observability.GetLogger().WithField("server", c.String("server"))
	defer logger.Sync()

	telemetry, err := observability.Initialize(ctx, observability.NewConfig("snappic-viewer", handlers.Version))
	if err != nil {
		logger.Warnf("Telemetry unavailable: %v", err)
	}

	metrics, err := observability.NewSyncMetrics()
	if err != nil {
		logger.Warnf("Sync metrics disabled: %v", err)
	}

	tree := gallery.NewTree()
	sync := gallery.NewSynchronizer(
		gallery.NewHTTPLister(c.String("server"), nil),
		gallery.NewLoggingRenderer(tree, logger),
		gallery.Options{
			PollInterval: c.Duration("poll-interval"),
			RemovalFade:  c.Duration("removal-fade"),
			Logger:       logger,
			Metrics:      metrics,
		},
	)
	defer sync.Close()

	if c.Bool("notify") {
		notifier, err := gallery.NewNotifier(c.String("server"), sync.Trigger)
		if err != nil {
			return err
		}
		go notifier.Run(ctx)
	}

	logger.Infof("Following gallery every %s", c.Duration("poll-interval"))
	err = sync.Run(ctx)

	if telemetry != nil {
		telemetry.Shutdown(context.Background())
	}
	if errors.Is(err, context.Canceled) {
		logger.Infof("Viewer stopped with %d photos on screen", len(tree.LiveIDs()))
		return nil
	}
	return err
}
