// Capture server - runs the capture coordinator, outcome relay, and the
// HTTP/WebSocket and gRPC surfaces.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/oneshot/internal/capture"
	"github.com/GriffinCanCode/oneshot/internal/config"
	"github.com/GriffinCanCode/oneshot/internal/database"
	"github.com/GriffinCanCode/oneshot/internal/foreground"
	"github.com/GriffinCanCode/oneshot/internal/grpcserver"
	"github.com/GriffinCanCode/oneshot/internal/logging"
	"github.com/GriffinCanCode/oneshot/internal/notify"
	"github.com/GriffinCanCode/oneshot/internal/orchestrator"
	"github.com/GriffinCanCode/oneshot/internal/permissions"
	"github.com/GriffinCanCode/oneshot/internal/relay"
	"github.com/GriffinCanCode/oneshot/internal/screen"
	"github.com/GriffinCanCode/oneshot/internal/server"
	"github.com/GriffinCanCode/oneshot/internal/storage"
)

const (
	foregroundSampleInterval = 2 * time.Second
	shutdownTimeout          = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	// Setup structured logging
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	rel := relay.New(database.NewMailboxStore(db), relay.Options{Logger: logger})
	if err := rel.Init(ctx); err != nil {
		return err
	}
	defer func() { _ = rel.Close() }()

	auth := permissions.NewAuthorizer(lookupEnv(cfg.CaptureBackend))
	display, projector := newBackend(cfg, auth)

	deps := capture.Deps{
		Display:   display,
		Projector: projector,
		Storage: storage.NewFolderSink(cfg.StorageRoot, storage.Options{
			Thumbnails: cfg.Thumbnails,
			Index:      database.NewGallery(db),
			Logger:     logger,
		}),
		Outcomes: rel,
	}

	g, gctx := errgroup.WithContext(ctx)

	if sampler, err := newSampler(cfg); err != nil {
		logger.Warn("foreground tracking disabled", "error", err)
	} else {
		tracker := foreground.NewTracker(sampler, foregroundSampleInterval)
		defer func() { _ = tracker.Close() }()
		deps.Foreground = tracker
		g.Go(func() error {
			tracker.Run(gctx)
			return nil
		})
	}

	coord := capture.NewCoordinator(deps, capture.Options{
		SettleDelay:      cfg.SettleDelay,
		DrainDelay:       cfg.DrainDelay,
		TeardownDelay:    cfg.TeardownDelay,
		ForegroundWindow: cfg.ForegroundWindow,
		JPEGQuality:      cfg.JPEGQuality,
		Logger:           logger,
	})

	var background notify.Presenter = notify.LogPresenter{Log: logger}
	if cfg.DesktopNotifications {
		background = notify.NewDesktopPresenter(logger)
	}

	countdown := cfg.Countdown
	if countdown == 0 {
		countdown = -1
	}
	orch := orchestrator.New(orchestrator.Deps{
		Authorizer: auth,
		Capturer:   coord,
		Relay:      rel,
		Background: background,
	}, orchestrator.Options{Countdown: countdown, PollInterval: cfg.PollInterval, Logger: logger})
	if err := orch.Start(ctx); err != nil {
		return err
	}
	defer orch.Stop()

	grpcSrv := grpcserver.New(logger)
	coord.Watch(grpcSrv.SetBusy)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.New(orch, logger).Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("capture server starting", "http", cfg.HTTPAddr, "grpc", cfg.GRPCAddr, "backend", cfg.CaptureBackend)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		return grpcSrv.Serve(lis)
	})

	// Wait for shutdown signal or a failed listener
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
		grpcSrv.Stop()
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// newBackend selects the physical display or the synthetic source.
func newBackend(cfg *config.Config, auth *permissions.Authorizer) (capture.Display, capture.Projector) {
	if cfg.CaptureBackend == config.BackendSynthetic {
		d := screen.SyntheticDisplay{Width: 1280, Height: 800, Density: cfg.DisplayDensity}
		return d, screen.NewSyntheticProjector(d, screen.PatternGradient, auth, screen.DefaultFrameInterval)
	}
	d := screen.NewDisplay(cfg.DisplayIndex, cfg.DisplayDensity)
	return d, screen.NewProjector(d, auth, screen.DefaultFrameInterval)
}

// newSampler labels synthetic captures with a fixed application name.
func newSampler(cfg *config.Config) (foreground.Sampler, error) {
	if cfg.CaptureBackend == config.BackendSynthetic {
		return foreground.StaticSampler("synthetic"), nil
	}
	return foreground.NewSampler()
}

// lookupEnv pre-authorises the synthetic backend unless the environment
// says otherwise.
func lookupEnv(backend string) permissions.LookupEnvFunc {
	return func(key string) (string, bool) {
		v, ok := os.LookupEnv(key)
		if !ok && key == permissions.OverrideEnv && backend == config.BackendSynthetic {
			return "granted", true
		}
		return v, ok
	}
}
