package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/sltalkie/internal/adapters/bridge"
	"github.com/dkeye/sltalkie/internal/adapters/device"
	"github.com/dkeye/sltalkie/internal/adapters/keepalive"
	"github.com/dkeye/sltalkie/internal/adapters/memnet"
	"github.com/dkeye/sltalkie/internal/adapters/wsnet"
	"github.com/dkeye/sltalkie/internal/app"
	"github.com/dkeye/sltalkie/internal/audio"
	"github.com/dkeye/sltalkie/internal/config"
	"github.com/dkeye/sltalkie/internal/core"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/dkeye/sltalkie/internal/metrics"
)

type transport interface {
	core.Transport
	ID() domain.PeerID
	Close()
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("sltalkie failed")
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config loading can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, loader, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(cfg.Level())
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	loader.Watch(func(next *config.Config) {
		zerolog.SetGlobalLevel(next.Level())
	})

	var (
		tr     transport
		mounts []func(gin.IRouter)
	)
	switch cfg.Transport.Kind {
	case "memnet":
		// Single device on a private network; useful for UI work without peers.
		tr = memnet.NewNetwork().Join(endpointID(cfg))
	default:
		ws := wsnet.New(wsnet.Config{
			ID:            endpointID(cfg),
			Seeds:         cfg.Transport.Seeds,
			QueryInterval: cfg.Transport.QueryInterval,
		})
		mounts = append(mounts, ws.Mount)
		tr = ws
	}
	defer tr.Close()

	pipeline := audio.NewPipeline(captureOpener(cfg), outputOpener(cfg), audio.WithBufferSize(cfg.Audio.BufferSize))
	hub := bridge.NewHub()
	stats := metrics.New()
	mounts = append(mounts, stats.Mount)
	keep := keepalive.New(cfg.Background)

	nickname := cfg.Nickname
	if nickname == "" {
		nickname = domain.RandomNickname()
	}
	manager := app.NewManager(tr, pipeline, stats.Wrap(hub),
		app.WithDataDir(cfg.DataDir),
		app.WithNickname(nickname),
		app.WithServiceID(cfg.ServiceID),
		app.WithRetryBackoff(cfg.RetryBackoff),
	)

	ctl := bridge.NewController(hub, manager, keep, bridge.Options{
		DefaultLocation: cfg.Loc(),
		ReadLimit:       cfg.ReadLimit,
		PingPeriod:      cfg.PingPeriod,
	})
	r := bridge.SetupRouter(ctx, bridge.RouterConfig{
		Mode:       cfg.Mode,
		StaticPath: cfg.StaticPath,
		Secret:     cfg.Secret,
	}, ctl, mounts...)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("endpoint", string(tr.ID())).Str("nickname", nickname).Msg("sltalkie started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return manager.Run(gctx)
	})
	g.Go(func() error {
		// Failures are reported as degraded status; the UI stays usable.
		if err := manager.StartAdvertising(gctx, nickname); err != nil {
			log.Warn().Err(err).Msg("advertising not started")
		}
		if err := manager.StartDiscovery(gctx); err != nil {
			log.Warn().Err(err).Msg("discovery not started")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		manager.Stop(shutdownCtx)
		return nil
	})

	err = g.Wait()
	log.Info().Msg("Server exited gracefully")
	return err
}

func endpointID(cfg *config.Config) domain.PeerID {
	if cfg.Transport.EndpointID != "" {
		return domain.PeerID(cfg.Transport.EndpointID)
	}
	return wsnet.NewEndpointID()
}

func captureOpener(cfg *config.Config) core.CaptureOpener {
	switch cfg.Audio.Capture {
	case "file":
		return device.FileCapture(cfg.Audio.CaptureFile)
	case "none":
		return device.Unavailable("capture disabled")
	default:
		return device.ARecord("arecord", cfg.Audio.Device)
	}
}

func outputOpener(cfg *config.Config) core.OutputOpener {
	if cfg.Audio.Output == "none" {
		return device.Discard()
	}
	return device.APlay("aplay", cfg.Audio.Device)
}
