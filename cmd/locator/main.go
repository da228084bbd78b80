// Spatial Object Locator
// Finds a color-filtered object in the camera view and reports its 3D
// position from the depth camera's spatial calculator.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	fyneapp "fyne.io/fyne/v2/app"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"spatial-object-locator/internal/annotate"
	"spatial-object-locator/internal/app"
	"spatial-object-locator/internal/config"
	"spatial-object-locator/internal/device"
	"spatial-object-locator/internal/device/emulator"
	"spatial-object-locator/internal/display"
	"spatial-object-locator/internal/hsv"
	"spatial-object-locator/internal/segment"
	"spatial-object-locator/internal/stream"
)

const (
	AppName    = "Spatial Object Locator"
	AppID      = "io.github.spatial-object-locator"
	AppVersion = "1.0.0"
)

func main() {
	cfg := config.Default()
	cfg.Bind(flag.CommandLine)
	flag.Parse()

	logger := initLogger(cfg.Debug)
	parsed, err := cfg.Parse()
	if err != nil {
		logger.WithError(err).Fatal("Invalid options")
	}

	topo, err := device.DefaultTopology()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load pipeline topology")
	}
	if cfg.PrintTopology {
		fmt.Printf("# %s\n%s", topo, device.DefaultTopologyYAML())
		return
	}

	logger.WithFields(logrus.Fields{
		"version":   AppVersion,
		"display":   cfg.Display,
		"source":    cfg.Source,
		"selection": cfg.Selection,
	}).Info("Starting " + AppName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Display {
	case display.BackendFyne:
		err = runFyne(ctx, stop, cfg, parsed, topo, logger)
	case display.BackendHighGUI:
		surface := display.NewHighGUI(parsed.Range)
		err = run(ctx, cfg, parsed, topo, surface, surface, logger)
		err = multierr.Append(err, surface.Close())
	default:
		surface := display.NewHeadless()
		err = run(ctx, cfg, parsed, topo, surface, hsv.Static(parsed.Range), logger)
	}
	if err != nil {
		logger.WithError(err).Fatal("Locator failed")
	}

	logger.Info("Application shutting down gracefully")
}

// runFyne keeps the fyne event loop on the main goroutine and runs the
// locator beside it. Closing the last window cancels the locator.
func runFyne(ctx context.Context, stop context.CancelFunc, cfg config.Config, parsed config.Parsed, topo *device.Topology, logger *logrus.Logger) error {
	a := fyneapp.NewWithID(AppID)
	surface := display.NewFyne(a, parsed.Range, logger)

	done := make(chan error, 1)
	go func() {
		err := run(ctx, cfg, parsed, topo, surface, surface, logger)
		_ = surface.Close()
		done <- err
	}()

	a.Run()
	stop()
	return <-done
}

func run(ctx context.Context, cfg config.Config, parsed config.Parsed, topo *device.Topology, surface display.Surface, provider hsv.Provider, logger *logrus.Logger) error {
	opts := emulator.Options{FPS: cfg.FPS, Logger: logger}
	switch cfg.Source {
	case config.SourceCapture:
		capture, err := emulator.OpenCapture(cfg.Capture)
		if err != nil {
			return err
		}
		opts.Color = capture
	case config.SourceImage:
		still, err := emulator.LoadStill(cfg.Capture)
		if err != nil {
			return err
		}
		opts.Color = still
	}

	dev, err := emulator.New(topo, opts)
	if err != nil {
		if opts.Color != nil {
			_ = opts.Color.Close()
		}
		return errors.Wrap(err, "open device")
	}
	defer dev.Close()

	src, err := stream.NewSource(dev, topo, stream.WithLogger(logger))
	if err != nil {
		return errors.Wrap(err, "open streams")
	}
	dev.Start(ctx)

	seg := segment.New(provider,
		segment.WithSelection(parsed.Selection),
		segment.WithIterations(cfg.Erode, cfg.Dilate),
		segment.WithLogger(logger),
	)
	defer seg.Close()

	loc := app.New(src, seg, annotate.New(annotate.WithLogger(logger)), surface,
		app.WithLogger(logger),
		app.WithMaxFrames(cfg.MaxFrames),
		app.WithStatsEvery(cfg.StatsEvery),
	)
	return loc.Run(ctx)
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
